package api

import (
	"bytes"
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fluxbase-eu/playground/internal/bundler"
	"github.com/fluxbase-eu/playground/internal/compiler"
	"github.com/fluxbase-eu/playground/internal/diagnostics"
	"github.com/fluxbase-eu/playground/internal/middleware"
	"github.com/fluxbase-eu/playground/internal/pipeline"
	"github.com/fluxbase-eu/playground/internal/session"
)

// SourceRequest replaces the editor contents
type SourceRequest struct {
	Source string `json:"source"`
}

// OptionsRequest changes compile options. Omitted fields keep their value.
type OptionsRequest struct {
	Minify        *string `json:"minify,omitempty"`
	EntryStrategy *string `json:"entry_strategy,omitempty"`
	Transpile     *bool   `json:"transpile,omitempty"`
}

// ViewRequest selects the output panel
type ViewRequest struct {
	View string `json:"view"`
}

// CompileRequest is a stateless compile. Fragment, when set, replaces every
// other field; otherwise omitted fields take their defaults.
type CompileRequest struct {
	Fragment      string  `json:"fragment,omitempty"`
	Source        *string `json:"source,omitempty"`
	Minify        *string `json:"minify,omitempty"`
	EntryStrategy *string `json:"entry_strategy,omitempty"`
	Transpile     *bool   `json:"transpile,omitempty"`
	View          *string `json:"view,omitempty"`
}

// OutputResponse is the output panel for one view
type OutputResponse struct {
	Generation uint64              `json:"generation"`
	View       session.View        `json:"view"`
	Artifacts  []pipeline.Artifact `json:"artifacts"`
	Error      string              `json:"error,omitempty"`
}

// DiagnosticsResponse carries diagnostics and the markers derived from them
type DiagnosticsResponse struct {
	Generation  uint64                `json:"generation"`
	Diagnostics []compiler.Diagnostic `json:"diagnostics"`
	Markers     []diagnostics.Marker  `json:"markers"`
}

// FragmentResponse is the shareable form of the current state
type FragmentResponse struct {
	Fragment string `json:"fragment"`
	URL      string `json:"url"`
}

// AcceptedResponse acknowledges an input that will be processed asynchronously
type AcceptedResponse struct {
	Accepted   bool   `json:"accepted"`
	Generation uint64 `json:"generation"`
}

func (s *Server) snapshot(c *fiber.Ctx) *pipeline.Snapshot {
	snap := s.playground.Snapshot()
	c.Locals("generation", snap.Generation)
	return snap
}

// handleGetSnapshot returns the displayed state
func (s *Server) handleGetSnapshot(c *fiber.Ctx) error {
	return c.JSON(s.snapshot(c))
}

// handleSetSource replaces the editor contents. Edits are debounced.
func (s *Server) handleSetSource(c *fiber.Ctx) error {
	var req SourceRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "Invalid request body", CodeInvalidBody)
	}
	if err := s.playground.SetSource(req.Source); err != nil {
		return handlePipelineError(c, err, "set source")
	}
	return s.accepted(c)
}

// handleSetOptions changes compile options and recompiles immediately.
// Omitted fields are filled in by the pipeline when it applies the update.
func (s *Server) handleSetOptions(c *fiber.Ctx) error {
	var req OptionsRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "Invalid request body", CodeInvalidBody)
	}

	update, err := req.update()
	if err != nil {
		return handlePipelineError(c, err, "set options")
	}
	if err := s.playground.UpdateOptions(update); err != nil {
		return handlePipelineError(c, err, "set options")
	}
	return s.accepted(c)
}

func (r OptionsRequest) update() (pipeline.OptionsUpdate, error) {
	var update pipeline.OptionsUpdate
	if r.Minify != nil {
		m, err := session.ParseMinifyMode(*r.Minify)
		if err != nil {
			return update, err
		}
		update.Minify = &m
	}
	if r.EntryStrategy != nil {
		e, err := session.ParseEntryStrategy(*r.EntryStrategy)
		if err != nil {
			return update, err
		}
		update.EntryStrategy = &e
	}
	update.Transpile = r.Transpile
	return update, nil
}

// handleSetView switches the output panel. It never triggers a compile.
func (s *Server) handleSetView(c *fiber.Ctx) error {
	var req ViewRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "Invalid request body", CodeInvalidBody)
	}
	view, err := session.ParseView(req.View)
	if err != nil {
		return handlePipelineError(c, err, "set view")
	}
	if err := s.playground.SetView(view); err != nil {
		return handlePipelineError(c, err, "set view")
	}
	return s.accepted(c)
}

// accepted answers an input. With ?wait=true it settles the pipeline first
// and returns the resulting snapshot.
func (s *Server) accepted(c *fiber.Ctx) error {
	if !c.QueryBool("wait") {
		snap := s.snapshot(c)
		return c.Status(fiber.StatusAccepted).JSON(AcceptedResponse{
			Accepted:   true,
			Generation: snap.Generation,
		})
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	snap, err := s.playground.Settle(ctx)
	if err != nil {
		return handlePipelineError(c, err, "settle pipeline")
	}
	c.Locals("generation", snap.Generation)
	return c.JSON(snap)
}

// handleGetOutput returns the output panel. ?view= overrides the selected view.
func (s *Server) handleGetOutput(c *fiber.Ctx) error {
	snap := s.snapshot(c)

	view := snap.State.View
	if q := c.Query("view"); q != "" {
		v, err := session.ParseView(q)
		if err != nil {
			return handlePipelineError(c, err, "read output")
		}
		view = v
	}

	return c.JSON(OutputResponse{
		Generation: snap.Generation,
		View:       view,
		Artifacts:  snap.Visible(view),
		Error:      snap.Error,
	})
}

// handleGetDiagnostics returns the current diagnostics and editor markers
func (s *Server) handleGetDiagnostics(c *fiber.Ctx) error {
	snap := s.snapshot(c)
	return c.JSON(DiagnosticsResponse{
		Generation:  snap.Generation,
		Diagnostics: snap.Diagnostics,
		Markers:     snap.Markers,
	})
}

// handleGetFragment returns the shareable fragment and a link carrying it
func (s *Server) handleGetFragment(c *fiber.Ctx) error {
	snap := s.snapshot(c)
	fragment := snap.Fragment
	if fragment == "" {
		f, err := session.ToFragment(snap.State)
		if err != nil {
			return handlePipelineError(c, err, "encode state")
		}
		fragment = f
	}
	return c.JSON(FragmentResponse{
		Fragment: fragment,
		URL:      shareURL(s.config.BaseURL, fragment),
	})
}

// handleCompile compiles a state without touching the running session
func (s *Server) handleCompile(c *fiber.Ctx) error {
	var req CompileRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "Invalid request body", CodeInvalidBody)
	}

	state, err := req.state()
	if err != nil {
		return handlePipelineError(c, err, "compile")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	snap, err := pipeline.RunOnce(ctx, s.compiler, s.bundler, state)
	if err != nil {
		if status, _ := classifyError(err); status == fiber.StatusInternalServerError {
			// the optimizer itself refused the input
			return SendErrorWithCode(c, fiber.StatusUnprocessableEntity, err.Error(), CodeCompileFailed)
		}
		return handlePipelineError(c, err, "compile")
	}
	c.Locals("generation", snap.Generation)
	return c.JSON(snap)
}

// handleGetAnalysis bundles the current modules and reports chunk sizes.
// ?format=text renders the table used by the CLI.
func (s *Server) handleGetAnalysis(c *fiber.Ctx) error {
	snap := s.snapshot(c)
	if !snap.State.Transpile {
		return SendErrorWithDetails(c, fiber.StatusConflict,
			"analysis requires transpiled output", CodeNotTranspiled,
			"", "enable transpile with PUT /api/v1/playground/options", nil)
	}

	format := c.Query("format", "json")
	if format != "json" && format != "text" {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "format must be json or text", CodeUnsupportedFormat)
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	result, err := s.bundler.Bundle(ctx, snap.Modules)
	if err != nil {
		return SendErrorWithCode(c, fiber.StatusUnprocessableEntity, err.Error(), CodeAnalysisFailed)
	}
	analysis := bundler.Analyze("playground", result)

	if format == "text" {
		var buf bytes.Buffer
		bundler.DisplayAnalysis(&buf, analysis, c.QueryBool("details"))
		c.Type("txt", "utf-8")
		return c.Send(buf.Bytes())
	}
	return c.JSON(analysis)
}

// requestContext derives a context for a blocking handler, bounded by the
// server write timeout
func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx := middleware.RequestContext(c)
	if t := s.config.Server.WriteTimeout; t > 0 {
		return context.WithTimeout(ctx, t)
	}
	return context.WithCancel(ctx)
}

func (r CompileRequest) state() (session.State, error) {
	if r.Fragment != "" {
		return session.Decode(strings.TrimPrefix(r.Fragment, session.FragmentPrefix))
	}

	state := session.Default()
	if r.Source != nil {
		state = state.WithSource(*r.Source)
	}
	if r.Minify != nil {
		m, err := session.ParseMinifyMode(*r.Minify)
		if err != nil {
			return session.State{}, err
		}
		state.Minify = m
	}
	if r.EntryStrategy != nil {
		e, err := session.ParseEntryStrategy(*r.EntryStrategy)
		if err != nil {
			return session.State{}, err
		}
		state.EntryStrategy = e
	}
	if r.Transpile != nil {
		state.Transpile = *r.Transpile
	}
	if r.View != nil {
		v, err := session.ParseView(*r.View)
		if err != nil {
			return session.State{}, err
		}
		state.View = v
	}
	return state, state.Validate()
}

// shareURL appends fragment to base. An empty base yields the bare fragment.
func shareURL(base, fragment string) string {
	if base == "" {
		return fragment
	}
	return strings.TrimRight(base, "/") + "/" + fragment
}
