package v1

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/semaphore"

	"github.com/parleychat/parley/ai"
	"github.com/parleychat/parley/ai/tools"
	"github.com/parleychat/parley/internal/profile"
	"github.com/parleychat/parley/server/router/api/v1/chat"
	"github.com/parleychat/parley/store"
)

// APIV1Service owns the HTTP API surface.
type APIV1Service struct {
	Profile  *profile.Profile
	Store    *store.Store
	Identity IdentityProvider

	orchestrator *chat.Orchestrator
	// turnSemaphore bounds concurrent streaming turns; each one holds an
	// upstream model connection open for its whole duration.
	turnSemaphore *semaphore.Weighted
}

const maxConcurrentTurns = 32

func NewAPIV1Service(instanceProfile *profile.Profile, storeInstance *store.Store) *APIV1Service {
	service := &APIV1Service{
		Profile:       instanceProfile,
		Store:         storeInstance,
		Identity:      NewHeaderIdentityProvider(),
		turnSemaphore: semaphore.NewWeighted(maxConcurrentTurns),
	}

	if instanceProfile.IsLLMEnabled() {
		model, err := ai.NewOpenAIModel(&ai.Config{
			APIKey:  instanceProfile.LLMAPIKey,
			BaseURL: instanceProfile.LLMBaseURL,
			Model:   instanceProfile.LLMModel,
			Timeout: instanceProfile.LLMTimeout,
		})
		if err != nil {
			slog.Warn("failed to initialize model, chat endpoints disabled", slog.String("error", err.Error()))
			return service
		}
		titles := ai.NewTitleGenerator(ai.TitleGeneratorConfig{
			APIKey:  instanceProfile.TitleAPIKey,
			BaseURL: instanceProfile.TitleBaseURL,
			Model:   instanceProfile.TitleModel,
		})
		service.orchestrator = chat.NewOrchestrator(
			storeInstance,
			chat.NewResolver(storeInstance, titles),
			chat.NewExtractor(),
			model,
			[]ai.Tool{tools.NewWeather(), tools.NewReadWebsite()},
			time.Duration(instanceProfile.TurnTimeout)*time.Second,
		)
		slog.Info("chat pipeline initialized",
			slog.String("model", instanceProfile.LLMModel),
			slog.String("title_model", instanceProfile.TitleModel))
	} else {
		slog.Warn("LLM not configured, chat endpoints disabled")
	}

	return service
}

// RegisterRoutes mounts the v1 API on the given echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	apiV1 := echoServer.Group("/api/v1")
	apiV1.POST("/chat", s.PostChat)
	apiV1.DELETE("/chat/:id", s.DeleteChat)
	apiV1.GET("/conversations", s.ListConversations)
	apiV1.GET("/conversations/:id/messages", s.ListConversationMessages)
}
