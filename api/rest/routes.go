package rest

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/civmanager/audit"
	"github.com/kasuganosora/civmanager/auth"
	"github.com/kasuganosora/civmanager/cache"
	"github.com/kasuganosora/civmanager/config"
	"github.com/kasuganosora/civmanager/game/assignment"
	"github.com/kasuganosora/civmanager/game/civilization"
	"github.com/kasuganosora/civmanager/game/ledger"
	mw "github.com/kasuganosora/civmanager/middleware"
	"github.com/kasuganosora/civmanager/scheduler"
	"github.com/kasuganosora/civmanager/store"
	"go.uber.org/zap"
)

// inFlightTTL bounds how long a crashed request can hold its route lock.
const inFlightTTL = 10 * time.Second

// Deps are the services the REST API is built from.
type Deps struct {
	Server   config.ServerConfig
	Security config.SecurityConfig
	Store    *store.Store
	Cache    cache.Cache
	Auth     *auth.Provider
	Civs     *civilization.Service
	Ledger   *ledger.Ledger
	Roster   *assignment.Manager
	Audit    *audit.Service
	Sched    *scheduler.Scheduler
	Logger   *zap.Logger
}

// Register mounts every /api route on api.
func Register(api *gin.RouterGroup, d Deps) {
	authH := NewAuthHandler(d.Auth, d.Logger)
	sessionH := NewSessionHandler(d.Auth, d.Civs, d.Logger)
	civH := NewCivilizationHandler(d.Civs, d.Audit)
	resH := NewResourceHandler(d.Ledger, d.Audit)
	charH := NewCharacterHandler(d.Roster, d.Audit)
	jobH := NewJobHandler(d.Store)
	adminH := NewAdminHandler(d.Store, d.Auth, d.Audit, d.Sched, d.Logger)

	lock := mw.InFlight(d.Cache, inFlightTTL, d.Logger)

	authG := api.Group("/auth")
	authG.POST("/signup", authH.SignUp)
	authG.POST("/signin", authH.SignIn)
	authG.POST("/signout", authH.SignOut)
	authG.POST("/password/reset", authH.RequestReset)
	authG.POST("/password/recover", authH.Recover)
	authG.POST("/password/update", authH.UpdatePassword)

	api.GET("/session", sessionH.Get)

	authed := api.Group("", mw.Auth(d.Security, d.Cache), mw.NoRecovery())
	authed.GET("/jobs", jobH.List)
	authed.GET("/civilization", civH.Get)
	authed.POST("/civilization", lock, civH.Found)
	authed.PATCH("/civilization", lock, civH.Rename)

	play := authed.Group("", RequireCivilization(d.Civs))
	play.GET("/resources", resH.Balance)
	play.POST("/resources/add", lock, resH.Add)
	play.POST("/resources/consume", lock, resH.Consume)
	play.POST("/resources/adjust", lock, resH.Adjust)

	play.GET("/characters", charH.List)
	play.POST("/characters", lock, charH.Recruit)
	play.DELETE("/characters/:id", lock, charH.Delete)
	play.PUT("/characters/:id/job", lock, charH.Assign)
	play.DELETE("/characters/:id/job", lock, charH.Unassign)
	play.GET("/characters/:id/jobs", charH.CompatibleJobs)

	adminG := api.Group("/admin", mw.IPWhitelist(d.Server.AdminIPs), AdminAuth(d.Server.AdminKey))
	adminG.GET("/metrics", adminH.Metrics)
	adminG.GET("/prometheus", adminH.Prometheus())
	adminG.POST("/jobs", adminH.UpsertJob)
	adminG.DELETE("/jobs/:id", adminH.DeleteJob)
	adminG.POST("/accounts/:id/ban", adminH.BanAccount)
	adminG.GET("/accounts/:id/audit", adminH.AccountAudit)
	adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	adminG.POST("/scheduler/:name/run", adminH.RunSchedulerTask)
}
