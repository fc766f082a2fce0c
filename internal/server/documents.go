package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ultradar/internal/curve"
	"github.com/sells-group/ultradar/internal/docstore"
	"github.com/sells-group/ultradar/internal/strategy"
	"github.com/sells-group/ultradar/internal/validation"
)

// StrategyRequest is the body of POST /strategies and /strategies/preview.
// Exactly one of Form or Document is used, Form first. When neither is set
// the body itself is read as a strategy document, unwrapping a loaded record
// such as {"bucket","key","etag","payload"}.
//
// A key on the body ("key", then "Key", then "object_key") turns the write
// into an edit of the document stored there. Edit demands one.
type StrategyRequest struct {
	Form     *validation.StrategyForm `json:"form,omitempty"`
	Document *strategy.Document       `json:"document,omitempty"`
	Key      string                   `json:"key,omitempty"`
	ETag     string                   `json:"etag,omitempty"`
	EditedBy string                   `json:"edited_by,omitempty"`
	Edit     bool                     `json:"edit,omitempty"`
	Series   curve.Series             `json:"series,omitempty"`

	key string
}

func (req StrategyRequest) form() (validation.StrategyForm, error) {
	switch {
	case req.Form != nil:
		return *req.Form, nil
	case req.Document != nil:
		return validation.FormFromDocument(*req.Document), nil
	}
	return validation.StrategyForm{}, validation.Required("form", "form or document required")
}

// documentFields mark a bare body as a strategy document.
var documentFields = []string{"strategy_id", "name", "parameters"}

// decodeStrategy reads a StrategyRequest, falling back to a bare document,
// and resolves the edit key from the raw body.
func decodeStrategy(w http.ResponseWriter, r *http.Request) (StrategyRequest, error) {
	var raw json.RawMessage
	if err := decode(w, r, &raw); err != nil {
		return StrategyRequest{}, err
	}
	var req StrategyRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, validation.Required("body", "request body must be a JSON object")
	}

	key, err := docstore.ResolveKey(raw)
	switch {
	case err == nil:
		req.key = key
	case !errors.Is(err, docstore.ErrNoObjectKey):
		return req, eris.Wrap(err, "server: resolve key")
	case req.Edit:
		return req, err
	}

	if req.Form != nil || req.Document != nil {
		return req, nil
	}
	payload, err := docstore.UnwrapEnvelope(raw)
	if err != nil {
		return req, validation.Required("body", "request body must be valid JSON")
	}
	var fields map[string]json.RawMessage
	if json.Unmarshal(payload, &fields) != nil {
		return req, nil
	}
	for _, f := range documentFields {
		if _, ok := fields[f]; ok {
			var doc strategy.Document
			if err := json.Unmarshal(payload, &doc); err != nil {
				return req, validation.Required("body", "request body is not a valid strategy document")
			}
			req.Document = &doc
			break
		}
	}
	return req, nil
}

// PutResponse says where a document was written.
type PutResponse struct {
	docstore.Locator
	ID      string `json:"id"`
	Version int    `json:"version,omitempty"`
}

// PreviewResponse is a built document and what it does to the series.
type PreviewResponse struct {
	Document strategy.Document `json:"document"`
	Preview  *curve.Preview    `json:"preview"`
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, s.strategiesPrefix)
}

func (s *Server) handleListExclusions(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, s.exclusionsPrefix)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, defaultPrefix string) {
	q := r.URL.Query()
	prefix := q.Get("prefix")
	if prefix == "" {
		prefix = defaultPrefix
	}
	summary, _ := strconv.ParseBool(q.Get("summary"))

	entries, err := s.docs.List(r.Context(), prefix, summary)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if err := docstore.CheckKey(key); err != nil {
		fail(w, r, validation.Required("key", keyMessage(err)))
		return
	}
	obj, err := s.docs.Get(r.Context(), key)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

func (s *Server) handlePutStrategy(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStrategy(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	form, err := req.form()
	if err != nil {
		fail(w, r, err)
		return
	}

	ctx := r.Context()
	var (
		doc  strategy.Document
		key  string
		etag string
	)
	if req.key != "" {
		if err := docstore.CheckKey(req.key); err != nil {
			fail(w, r, validation.Required("key", keyMessage(err)))
			return
		}
		prev, err := s.docs.Get(ctx, req.key)
		if err != nil {
			fail(w, r, err)
			return
		}
		doc, err = validation.BuildEdit(strategy.Previous{
			Payload: prev.Payload,
			Bucket:  prev.Bucket,
			Key:     prev.Key,
			ETag:    prev.ETag,
		}, form, req.EditedBy, s.now)
		if err != nil {
			fail(w, r, err)
			return
		}
		key, etag = prev.Key, prev.ETag
		if req.ETag != "" {
			etag = req.ETag
		}
	} else {
		doc, err = validation.BuildStrategy(form, s.now, s.newID)
		if err != nil {
			fail(w, r, err)
			return
		}
		key = docstore.DocumentKey(s.strategiesPrefix, doc.StrategyID)
	}

	loc, err := s.docs.Put(ctx, key, doc, etag)
	if err != nil {
		fail(w, r, err)
		return
	}
	if s.catalog != nil {
		s.catalog.Invalidate()
	}
	writeJSON(w, http.StatusCreated, PutResponse{Locator: *loc, ID: doc.StrategyID, Version: doc.Version})
}

func (s *Server) handlePreviewStrategy(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStrategy(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	form, err := req.form()
	if err != nil {
		fail(w, r, err)
		return
	}
	doc, err := validation.BuildStrategy(form, s.now, s.newID)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := curve.BuildPreview(doc, req.Series)
	if err != nil {
		fail(w, r, eris.Wrap(err, "server: preview"))
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{Document: doc, Preview: p})
}

func (s *Server) handlePutExclusion(w http.ResponseWriter, r *http.Request) {
	var form validation.ExclusionForm
	if err := decode(w, r, &form); err != nil {
		fail(w, r, err)
		return
	}
	ctx := r.Context()
	doc, err := validation.BuildExclusion(ctx, form, s.resolver, s.now, s.newID)
	if err != nil {
		fail(w, r, err)
		return
	}
	loc, err := s.docs.Put(ctx, docstore.DocumentKey(s.exclusionsPrefix, doc.ExclusionID), doc, "")
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, PutResponse{Locator: *loc, ID: doc.ExclusionID})
}

func keyMessage(err error) string {
	if eris.Is(err, docstore.ErrNoObjectKey) {
		return "key required"
	}
	return "key is not a valid document key"
}
