package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/editais-cli/internal/export"
	"github.com/sells-group/editais-cli/internal/model"
	"github.com/sells-group/editais-cli/internal/pipeline"
	"github.com/sells-group/editais-cli/internal/session"
	"github.com/sells-group/editais-cli/internal/store"
)

var (
	errBadRequest     = eris.New("api: bad request")
	errResultNotFound = eris.New("api: result not found or expired")
)

const maxBodyBytes = 1 << 20

const (
	formatXLSX = export.FormatXLSX
	formatCSV  = export.FormatCSV
)

func (s *Server) handleUFs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"ufs": s.catalog.UFs()})
}

func (s *Server) handleMunicipios(w http.ResponseWriter, r *http.Request) {
	list := s.catalog.List(r.URL.Query().Get("uf"))
	out := make([]model.Selection, len(list))
	for i, m := range list {
		out[i] = m.Selection()
	}
	writeJSON(w, http.StatusOK, out)
}

type statusBody struct {
	Label  string             `json:"label"`
	Value  string             `json:"value"`
	Bucket model.StatusBucket `json:"bucket"`
}

func (s *Server) handleStatuses(w http.ResponseWriter, _ *http.Request) {
	var out []statusBody
	for _, o := range model.StatusOptions() {
		out = append(out, statusBody{Label: o.Label, Value: o.APIValue, Bucket: o.Bucket})
	}
	writeJSON(w, http.StatusOK, out)
}

// municipioRef names a municipality by PNCP code or by name and state.
type municipioRef struct {
	Code string `json:"code"`
	Name string `json:"name"`
	UF   string `json:"uf"`
}

type searchRequest struct {
	Preset      string         `json:"preset"`
	Keyword     string         `json:"keyword"`
	StatusLabel string         `json:"status_label"`
	UF          string         `json:"uf"`
	Municipios  []municipioRef `json:"municipios"`
	Refresh     bool           `json:"refresh"` // drop a cached result first
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return eris.Wrapf(errBadRequest, "api: invalid request body: %v", err)
	}
	return nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	sess, err := s.buildSession(r, req)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.Refresh {
		s.cache.Invalidate(sess.Signature())
	}

	res, err := s.searcher.Run(r.Context(), sess, func(p pipeline.ShardProgress) {
		zap.L().Debug("api: shard finished",
			zap.String("shard", p.Selection.Code),
			zap.Int("done", p.Done),
			zap.Int("total", p.Total),
		)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// buildSession turns a request into a session: preset first, then the
// request's own filters and municipalities on top.
func (s *Server) buildSession(r *http.Request, req searchRequest) (*session.Session, error) {
	sess := session.New(session.WithCache(s.cache), session.WithLimit(s.opts.MaxSelections))

	if req.Preset != "" {
		p, err := s.store.GetPreset(r.Context(), req.Preset)
		if err != nil {
			return nil, err
		}
		sess.Apply(*p)
	}

	f := sess.Filters()
	if req.Keyword != "" {
		f.Keyword = req.Keyword
	}
	if req.StatusLabel != "" {
		opt, ok := model.LookupStatus(req.StatusLabel)
		if !ok {
			return nil, eris.Wrapf(pipeline.ErrUnknownStatus, "api: %q", req.StatusLabel)
		}
		f.StatusLabel = opt.Label
	}
	if req.UF != "" {
		f.UF = strings.ToUpper(strings.TrimSpace(req.UF))
	}
	sess.SetFilters(f)

	for _, ref := range req.Municipios {
		var (
			sel model.Selection
			err error
		)
		if ref.Code != "" {
			sel, err = s.catalog.ResolveSpec(ref.Code, "")
		} else {
			uf := ref.UF
			if uf == "" {
				uf = f.UF
			}
			sel, err = s.catalog.Resolve(ref.Name, uf)
		}
		if err != nil {
			return nil, err
		}
		if err := sess.Add(sel); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func (s *Server) handleCachedResult(w http.ResponseWriter, r *http.Request) {
	res := s.cache.Get(chi.URLParam(r, "signature"))
	if res == nil {
		writeError(w, errResultNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExport(format export.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := s.cache.Get(chi.URLParam(r, "signature"))
		if res == nil {
			writeError(w, errResultNotFound)
			return
		}

		name := export.DefaultFileName(time.Now(), format)
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		var err error
		switch format {
		case export.FormatCSV:
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			err = export.WriteCSV(w, res.Records)
		default:
			w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			err = export.WriteXLSX(w, res.Records, s.opts.SheetName)
		}
		if err != nil {
			// Headers are already sent.
			zap.L().Error("api: export failed", zap.String("signature", res.Signature), zap.Error(err))
		}
	}
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.store.ListPresets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, namedPresets(presets))
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPreset(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, namedPreset(*p))
}

func (s *Server) handlePutPreset(w http.ResponseWriter, r *http.Request) {
	var p model.SavedSearch
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, err)
		return
	}
	p.Name = chi.URLParam(r, "name")
	if p.StatusLabel != "" {
		if _, ok := model.LookupStatus(p.StatusLabel); !ok {
			writeError(w, eris.Wrapf(pipeline.ErrUnknownStatus, "api: %q", p.StatusLabel))
			return
		}
	}
	for _, sel := range p.Selections {
		if sel.Code == "" {
			writeError(w, eris.Wrap(errBadRequest, "api: every municipio needs codigo_pncp"))
			return
		}
	}
	if err := s.store.SavePreset(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, namedPreset(p))
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePreset(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status:    model.RunStatus(q.Get("status")),
		Signature: q.Get("signature"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, eris.Wrapf(errBadRequest, "api: invalid limit %q", v))
			return
		}
		filter.Limit = n
	}
	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []model.SearchRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// presetBody is a preset with its name, which the stored JSON shape keeps
// as the object key instead.
type presetBody struct {
	Name string `json:"name"`
	model.SavedSearch
}

func namedPreset(p model.SavedSearch) presetBody {
	return presetBody{Name: p.Name, SavedSearch: p}
}

func namedPresets(ps []model.SavedSearch) []presetBody {
	out := make([]presetBody, len(ps))
	for i, p := range ps {
		out[i] = namedPreset(p)
	}
	return out
}
