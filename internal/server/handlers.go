// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/citation-manager/internal/agent"
	"github.com/pdiddy/citation-manager/internal/csl"
	"github.com/pdiddy/citation-manager/internal/ltm"
	"github.com/pdiddy/citation-manager/internal/pdfref"
)

// styleNames are the display names reported by /csl_status.
var styleNames = map[string]string{
	"apa":     "APA",
	"mla":     "MLA",
	"chicago": "Chicago",
	"harvard": "Harvard",
	"ieee":    "IEEE",
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"agent":     AgentLabel,
		"timestamp": s.timestamp(),
	})
}

func (s *Server) process(c *gin.Context) {
	env, err := decode(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "Invalid request body: %v", err)
		return
	}
	p := readParams(env).process()

	res, err := s.svc.Process(c.Request.Context(), p)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Formatting failed: %v", err)
		return
	}

	m := s.meta()
	m.RenderEngine = renderEngine(res.Rendered)
	m.CSLStylePath = res.Rendered.StylePath
	m.FallbackReason = res.Rendered.FallbackReason
	s.report(c, env.Sender, env.MessageID, output{Status: res.Status(), Result: res, Meta: m})
}

// renderEngine names what produced a rendering: "CSL" for the engine or a
// style file, "fallback" for the manual format.
func renderEngine(r csl.Rendered) string {
	if r.Engine == csl.EngineFallback {
		return csl.EngineFallback
	}
	return "CSL"
}

func (s *Server) batch(c *gin.Context) {
	env, err := decode(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "Invalid request: %v", err)
		return
	}
	task := readParams(env).task

	res := s.svc.Batch(c.Request.Context(), listOf(task["items"]), stringOf(task["style"]), boolOf(task["includeDOI"], true))
	s.report(c, env.Sender, env.MessageID, output{Status: "ok", Result: res, Meta: s.meta()})
}

func (s *Server) bibliography(c *gin.Context) {
	env, err := decode(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "Invalid request: %v", err)
		return
	}

	res := s.svc.Bibliography(c.Request.Context(), readParams(env).bibliography())
	s.report(c, env.Sender, env.MessageID, output{Status: "ok", Result: res})
}

func (s *Server) convert(c *gin.Context) {
	env, err := decode(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "Invalid request: %v", err)
		return
	}
	task := readParams(env).task

	out := s.svc.Convert(c.Request.Context(), mapOf(task["metadata"]), stringOf(task["from_style"]), stringOf(task["to_style"]))
	s.report(c, env.Sender, env.MessageID, output{
		Status: "ok",
		Result: gin.H{"converted": out.Text},
	})
}

type retrieveResult struct {
	Items []ltm.Row `json:"items"`
	Count int       `json:"count"`
}

func (s *Server) retrieve(c *gin.Context) {
	env, err := decode(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "Invalid request: %v", err)
		return
	}
	q, err := readParams(env).query()
	if err != nil {
		s.fail(c, http.StatusBadRequest, "Invalid request: %v", err)
		return
	}

	rows, err := s.svc.Retrieve(c.Request.Context(), q)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "LTM retrieval failed: %v", err)
		return
	}
	if rows == nil {
		rows = []ltm.Row{}
	}
	s.report(c, env.Sender, env.MessageID, output{
		Status: "ok",
		Result: retrieveResult{Items: rows, Count: len(rows)},
		Meta:   s.meta(),
	})
}

type styleStatus struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

type cslStatusResponse struct {
	CiteprocAvailable bool                   `json:"citeproc_available"`
	StyleDirEnv       *string                `json:"style_dir_env"`
	Styles            map[string]styleStatus `json:"styles"`
	Engine            string                 `json:"engine"`
	EngineError       string                 `json:"engine_error,omitempty"`
	StyleDirs         []string               `json:"style_dirs"`
}

func (s *Server) cslStatus(c *gin.Context) {
	st := s.svc.RendererStatus()
	resp := cslStatusResponse{
		CiteprocAvailable: st.EngineAvailable,
		Styles:            make(map[string]styleStatus, len(st.Styles)),
		Engine:            st.Engine,
		EngineError:       st.EngineError,
		StyleDirs:         st.StyleDirs,
	}
	if s.styleDir != "" {
		dir := s.styleDir
		resp.StyleDirEnv = &dir
	}
	for key, res := range st.Styles {
		name, ok := styleNames[key]
		if !ok {
			name = strings.ToUpper(key)
		}
		resp.Styles[name] = styleStatus{Path: res.Path, Exists: res.Found}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) uploadPDF(c *gin.Context) {
	p := agent.UploadParams{
		Style:      c.DefaultQuery("style", agent.DefaultStyle),
		IncludeDOI: queryBool(c, "includeDOI", true),
		LLMParse:   queryBool(c, "llm_parse", true),
		Save:       queryBool(c, "save", false),
		SaveAll:    queryBool(c, "save_all", false),
		UserID:     c.Query("user_id"),
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	fh, err := c.FormFile("file")
	if err != nil {
		s.fail(c, http.StatusBadRequest, "Failed to read uploaded file: %v", err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.fail(c, http.StatusBadRequest, "Failed to read uploaded file: %v", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "Failed to read uploaded file: %v", err)
		return
	}
	if len(data) == 0 {
		s.fail(c, http.StatusBadRequest, "Empty PDF upload")
		return
	}

	res, err := s.svc.UploadPDF(c.Request.Context(), data, p)
	if err != nil {
		if errors.Is(err, pdfref.ErrEmpty) {
			s.fail(c, http.StatusBadRequest, "Empty PDF upload")
			return
		}
		s.fail(c, http.StatusBadRequest, "Invalid PDF: %v", err)
		return
	}
	s.logger.Info("PDF processed",
		zap.String("filename", fh.Filename),
		zap.Int("processed", res.ProcessedCount),
		zap.Int("total", res.TotalCandidates),
		zap.Bool("truncated", res.Truncated),
	)
	s.report(c, uploadRecipient, uuid.NewString(), output{Status: "ok", Result: res, Meta: s.meta()})
}

// queryBool reads a boolean query parameter, falling back to def when it
// is absent or unparseable.
func queryBool(c *gin.Context, key string, def bool) bool {
	v, ok := c.GetQuery(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return boolOf(v, def)
	}
	return b
}
