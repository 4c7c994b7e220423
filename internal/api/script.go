package api

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/MrWong99/podscript/internal/observe"
	"github.com/MrWong99/podscript/internal/scriptfile"
	"github.com/MrWong99/podscript/pkg/script"
)

// statsResponse carries the whole-script and per-role statistics.
type statsResponse struct {
	Statistics script.Statistics       `json:"statistics"`
	Roles      []script.RoleStatistics `json:"roles"`
}

func (s *Server) handleClearScript(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	sess.Script().Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	m := sess.Script()
	writeJSON(w, http.StatusOK, statsResponse{
		Statistics: m.Statistics(),
		Roles:      m.RoleStatistics(),
	})
}

// handleExport writes the session's snapshot as JSON, or in the YAML
// authoring format with ?format=yaml.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	snap := sess.Snapshot()

	var (
		buf         bytes.Buffer
		err         error
		contentType string
		ext         string
	)
	switch format := exportFormat(r); format {
	case scriptfile.FormatJSON:
		err = snap.Encode(&buf)
		contentType, ext = "application/json; charset=utf-8", ".json"
	case scriptfile.FormatYAML:
		err = scriptfile.FromSnapshot(snap).Encode(&buf)
		contentType, ext = "application/yaml; charset=utf-8", ".yaml"
	default:
		s.writeError(w, r, badRequest("unsupported export format %q", format))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+sess.ID()+ext+`"`)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func exportFormat(r *http.Request) scriptfile.Format {
	switch f := strings.ToLower(r.URL.Query().Get("format")); f {
	case "", "json":
		return scriptfile.FormatJSON
	case "yaml", "yml":
		return scriptfile.FormatYAML
	default:
		return scriptfile.Format(f)
	}
}

// handleImport loads a script document into the session. JSON snapshots and
// YAML files replace the script; plain text (?format=text) is appended,
// matching the names in the text against the existing roles.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	ctx, span := observe.StartSpan(observe.WithSession(r.Context(), sess.ID()), "api.import")
	var err error
	defer func() { observe.EndSpan(span, err) }()

	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	defer body.Close()

	format := scriptfile.Format(strings.ToLower(r.URL.Query().Get("format")))
	if format == "" {
		format = scriptfile.FormatJSON
	}
	d := s.sessions.Defaults()

	if format == scriptfile.FormatText {
		im := scriptfile.NewImporter(
			scriptfile.WithDefaults(d),
			scriptfile.WithLogger(observe.Logger(ctx)),
		)
		var res scriptfile.ImportResult
		res, err = im.Import(sess.Script(), body)
		if err != nil {
			s.writeError(w, r, badRequest("%v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"import":     res,
			"statistics": sess.Script().Statistics(),
		})
		return
	}

	var snap *script.Snapshot
	switch format {
	case scriptfile.FormatJSON, scriptfile.FormatYAML:
		snap, err = scriptfile.ReadSnapshot(body, format, d)
	case "yml":
		snap, err = scriptfile.ReadSnapshot(body, scriptfile.FormatYAML, d)
	default:
		err = badRequest("unsupported import format %q", format)
	}
	if err == nil {
		err = sess.Import(snap)
	}
	if err != nil {
		if statusOf(err) == http.StatusInternalServerError {
			err = badRequest("%v", err)
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}
