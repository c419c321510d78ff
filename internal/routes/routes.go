package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/nestmatch/nestmatch-backend/internal/config"
	"github.com/nestmatch/nestmatch-backend/internal/handler"
	"github.com/nestmatch/nestmatch-backend/internal/middleware"
	"github.com/nestmatch/nestmatch-backend/pkg/jwt"
)

// Setup configures all API routes
func Setup(
	router *gin.Engine,
	conversationHandler *handler.ConversationHandler,
	messageHandler *handler.MessageHandler,
	quotaHandler *handler.QuotaHandler,
	memberHandler *handler.MemberHandler,
	wsHandler *handler.WSHandler,
	jwtManager *jwt.Manager,
	cfg *config.Config,
) {
	api := router.Group("/api/v1")

	// Conversations
	conversations := api.Group("/conversations", middleware.JWTAuth(jwtManager))
	{
		conversations.POST("", conversationHandler.StartConversation)
		conversations.GET("", conversationHandler.ListConversations)
		conversations.PATCH("/:id/status", conversationHandler.UpdateStatus)

		conversations.GET("/:id/messages", messageHandler.ListMessages)
		conversations.POST("/:id/messages", messageHandler.SendMessage)
		conversations.POST("/:id/read", messageHandler.MarkRead)
	}

	// Quota
	quota := api.Group("/quota")
	quota.GET("", middleware.JWTAuth(jwtManager), quotaHandler.GetStatus)
	// Purchase intake is service-to-service, not user-authenticated
	quota.POST("/credits/grant", middleware.APIKeyAuth(cfg.Messaging.IntakeAPIKey), quotaHandler.GrantCredit)

	// Members: profile sync comes from the account system
	members := api.Group("/members")
	members.POST("/sync", middleware.APIKeyAuth(cfg.Messaging.IntakeAPIKey), memberHandler.Sync)
	members.GET("/:id", middleware.JWTAuth(jwtManager), memberHandler.Get)

	// Realtime channel
	api.GET("/ws", middleware.JWTAuth(jwtManager), wsHandler.Connect)
}
