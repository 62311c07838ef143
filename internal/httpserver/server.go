package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/DarriEy/delta-agent/internal/agent"
	"github.com/DarriEy/delta-agent/internal/api"
	"github.com/DarriEy/delta-agent/internal/bridge"
	"github.com/DarriEy/delta-agent/internal/config"
	"github.com/DarriEy/delta-agent/internal/conversation"
	"github.com/DarriEy/delta-agent/internal/speech"
	"github.com/DarriEy/delta-agent/pkg/logger"
)

// Server bundles the gateway router and its dependencies.
type Server struct {
	Router *echo.Echo

	cfg     config.Config
	backend *api.Backend
	synth   speech.Synthesizer
	mime    string
}

// New constructs the gateway with its routes. synth is the TTS engine shared
// by all widget sessions; its MIME type is announced with every play command.
func New(cfg config.Config, backend *api.Backend, synth speech.Synthesizer) *Server {
	s := &Server{
		Router:  newRouter(),
		cfg:     cfg,
		backend: backend,
		synth:   synth,
		mime:    synthMIME(synth),
	}

	s.Router.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	s.Router.GET("/ws", s.handleWidget)

	g := s.Router.Group("/api")
	g.POST("/run_modeling", s.handleRunModeling)
	g.GET("/jobs/:id", s.handleJobStatus)
	g.GET("/summary/:id", s.handleSummary)
	g.POST("/generate_image", s.handleGenerateImage)

	return s
}

// synthMIME asks the synthesizer what it emits; the backend TTS route
// returns MP3 and does not say so, hence the default.
func synthMIME(s speech.Synthesizer) string {
	if m, ok := s.(interface{ MIMEType() string }); ok {
		return m.MIMEType()
	}
	return "audio/mp3"
}

// handleWidget owns one widget connection for its whole life: it builds the
// per-connection speech and conversation stack and runs the bridge read loop
// until the socket drops.
func (s *Server) handleWidget(c echo.Context) error {
	sess, err := bridge.Upgrade(c.Response(), c.Request(), s.mime)
	if err != nil {
		return err
	}
	logger.Infof("[%s] widget connected", sess.ID)

	coord := speech.NewCoordinator(sess, s.synth, sess)
	conv := conversation.NewManager(s.backend, s.cfg.DefaultMode, s.cfg.UserID)
	av := agent.NewSession(conv, coord, agent.Events{
		OnStateChange: func(state agent.State) { sess.PushState(string(state)) },
		OnShake:       sess.Shake,
	})

	ctx := c.Request().Context()
	stop := av.Start(ctx)
	defer stop()
	sess.OnActivate = func() { av.Activate(ctx) }

	sess.Run(ctx)
	logger.Infof("[%s] widget disconnected", sess.ID)
	return nil
}

type runModelingRequest struct {
	Model   string `json:"model"`
	JobType string `json:"job_type"`
}

func (s *Server) handleRunModeling(c echo.Context) error {
	var req runModelingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := s.backend.SubmitModelingJob(c.Request().Context(), req.Model, req.JobType)
	if err != nil {
		return backendError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleJobStatus(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "job id must be an integer")
	}
	resp, err := s.backend.GetJobStatus(c.Request().Context(), id)
	if err != nil {
		return backendError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSummary(c echo.Context) error {
	summary, err := s.backend.Summary(c.Request().Context(), c.Param("id"))
	if err != nil {
		return backendError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"summary": summary})
}

type generateImageRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleGenerateImage(c echo.Context) error {
	var req generateImageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt is required")
	}
	url, err := s.backend.GenerateImage(c.Request().Context(), req.Prompt)
	if err != nil {
		return backendError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"image_url": url})
}

// backendError maps research backend failures onto gateway responses,
// preserving the upstream status when there is one.
func backendError(err error) error {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return echo.NewHTTPError(apiErr.Status, apiErr.Error())
	}
	return echo.NewHTTPError(http.StatusBadGateway, err.Error())
}
