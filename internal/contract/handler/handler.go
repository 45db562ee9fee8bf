package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/procurely/contracting-api/internal/contract"
	"github.com/procurely/contracting-api/internal/contract/repository"
	"github.com/procurely/contracting-api/internal/contract/service"
	"github.com/procurely/contracting-api/internal/storage"
	"github.com/procurely/contracting-api/pkg/middleware"
)

// RoutePrefix is the mount point of the contracting API.
const RoutePrefix = "/api/v1"

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Handler exposes the contracting API over gin. Files is optional; without
// it document uploads and downloads are rejected.
type Handler struct {
	svc   *service.Service
	files *storage.MinIOStorage
}

// New builds a Handler. files may be nil.
func New(svc *service.Service, files *storage.MinIOStorage) *Handler {
	return &Handler{svc: svc, files: files}
}

// Register mounts all contract routes under RoutePrefix.
func (h *Handler) Register(r *gin.Engine) {
	api := r.Group(RoutePrefix)
	api.GET("/contracts", h.listContracts)
	api.POST("/contracts", h.createContract)
	api.GET("/contracts/:id", h.getContract)
	api.PATCH("/contracts/:id", h.patchContract)
	api.PATCH("/contracts/:id/credentials", h.regenerateCredentials)
	api.POST("/contracts/:id/changes", h.createChange)
	api.GET("/contracts/:id/changes", h.listChanges)
	api.GET("/contracts/:id/changes/:change_id", h.getChange)
	api.PATCH("/contracts/:id/changes/:change_id", h.patchChange)
	api.POST("/contracts/:id/documents", h.createDocument)
	api.GET("/contracts/:id/documents", h.listDocuments)
	api.GET("/contracts/:id/documents/:doc_id", h.getDocument)
	api.PATCH("/contracts/:id/documents/:doc_id", h.patchDocument)
	api.PUT("/contracts/:id/documents/:doc_id/file", h.uploadDocumentFile)
}

func actorFrom(c *gin.Context) service.Actor {
	id := c.GetString(middleware.CtxActorID)
	role := c.GetString(middleware.CtxActorRole)
	if id == "" {
		id = "broker"
	}
	if role == "" {
		role = "broker"
	}
	return service.Actor{ID: id, Role: role, Token: c.Query("acc_token")}
}

// render writes a JSON body honoring opt_pretty and opt_jsonp.
func render(c *gin.Context, code int, payload any) {
	var (
		body []byte
		err  error
	)
	if c.Query("opt_pretty") != "" {
		body, err = json.MarshalIndent(payload, "", "  ")
	} else {
		body, err = json.Marshal(payload)
	}
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if cb := c.Query("opt_jsonp"); cb != "" {
		c.Data(code, "application/javascript; charset=utf-8", []byte(cb+"("+string(body)+");"))
		return
	}
	c.Data(code, "application/json; charset=utf-8", body)
}

func respondError(c *gin.Context, code int, errs ...contract.FieldError) {
	render(c, code, gin.H{"status": "error", "errors": errs})
}

// mapError translates core errors onto the API error envelope.
func mapError(c *gin.Context, err error) {
	var ve *contract.ValidationError
	if errors.As(err, &ve) {
		respondError(c, http.StatusUnprocessableEntity, ve.Errors...)
		return
	}
	var ute *contract.UnsupportedTypeError
	if errors.As(err, &ute) {
		respondError(c, http.StatusUnsupportedMediaType, contract.FieldError{Location: "body", Name: "data", Description: "contractType Not implemented"})
		return
	}
	var oe *contract.OperationError
	if errors.As(err, &oe) {
		respondError(c, http.StatusForbidden, contract.FieldError{Location: "body", Name: "data", Description: oe.Reason})
		return
	}
	switch {
	case errors.Is(err, contract.ErrNotFound):
		respondError(c, http.StatusNotFound, contract.FieldError{Location: "url", Name: "contract_id", Description: "Not Found"})
	case errors.Is(err, contract.ErrArchived):
		respondError(c, http.StatusGone, contract.FieldError{Location: "url", Name: "contract_id", Description: "Archived"})
	case errors.Is(err, contract.ErrOffsetInvalid):
		respondError(c, http.StatusNotFound, contract.FieldError{Location: "params", Name: "offset", Description: "Offset expired/invalid"})
	case errors.Is(err, contract.ErrForbidden):
		respondError(c, http.StatusForbidden, contract.FieldError{Location: "url", Name: "permission", Description: "Forbidden"})
	case errors.Is(err, contract.ErrConflict):
		respondError(c, http.StatusConflict, contract.FieldError{Location: "body", Name: "data", Description: "Conflict while saving document, please retry"})
	default:
		respondError(c, http.StatusInternalServerError, contract.FieldError{Location: "body", Name: "data", Description: err.Error()})
	}
}

// bindData extracts the {"data": {...}} envelope of a write request.
func bindData(c *gin.Context) (map[string]any, bool) {
	if ct := c.ContentType(); ct != "application/json" {
		respondError(c, http.StatusUnsupportedMediaType, contract.FieldError{Location: "header", Name: "Content-Type", Description: "Content type: " + ct + " is not supported"})
		return nil, false
	}
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusUnprocessableEntity, contract.FieldError{Location: "body", Name: "data", Description: "No JSON object could be decoded"})
		return nil, false
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		respondError(c, http.StatusUnprocessableEntity, contract.FieldError{Location: "body", Name: "data", Description: "Data not available"})
		return nil, false
	}
	return data, true
}

func (h *Handler) createContract(c *gin.Context) {
	data, ok := bindData(c)
	if !ok {
		return
	}
	created, t, err := h.svc.Create(c.Request.Context(), data, actorFrom(c))
	if err != nil {
		mapError(c, err)
		return
	}
	render(c, http.StatusCreated, gin.H{
		"data":   contract.Project(created, t, contract.PurposeView, ""),
		"access": gin.H{"token": created.OwnerToken},
	})
}

func (h *Handler) getContract(c *gin.Context) {
	cn, t, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapError(c, err)
		return
	}
	render(c, http.StatusOK, gin.H{"data": contract.Project(cn, t, contract.PurposeView, "")})
}

func (h *Handler) patchContract(c *gin.Context) {
	data, ok := bindData(c)
	if !ok {
		return
	}
	cn, t, err := h.svc.Patch(c.Request.Context(), c.Param("id"), data, actorFrom(c))
	if err != nil {
		mapError(c, err)
		return
	}
	render(c, http.StatusOK, gin.H{"data": contract.Project(cn, t, contract.PurposeView, "")})
}

func (h *Handler) regenerateCredentials(c *gin.Context) {
	cn, t, err := h.svc.RegenerateCredentials(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		mapError(c, err)
		return
	}
	render(c, http.StatusOK, gin.H{
		"data":   contract.Project(cn, t, contract.PurposeView, ""),
		"access": gin.H{"token": cn.OwnerToken},
	})
}

func (h *Handler) createChange(c *gin.Context) {
	data, ok := bindData(c)
	if !ok {
		return
	}
	ch, err := h.svc.CreateChange(c.Request.Context(), c.Param("id"), data, actorFrom(c))
	if err != nil {
		mapError(c, err)
		return
	}
	render(c, http.StatusCreated, gin.H{"data": ch})
}

func (h *Handler) listChanges(c *gin.Context) {
	cn, _, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapError(c, err)
		return
	}
	render(c, http.StatusOK, gin.H{"data": cn.Changes})
}

func (h *Handler) getChange(c *gin.Context) {
	cn, _, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapError(c, err)
		return
	}
	ch := cn.ChangeByID(c.Param("change_id"))
	if ch == nil {
		respondError(c, http.StatusNotFound, contract.FieldError{Location: "url", Name: "change_id", Description: "Not Found"})
		return
	}
	render(c, http.StatusOK, gin.H{"data": ch})
}

func (h *Handler) patchChange(c *gin.Context) {
	data, ok := bindData(c)
	if !ok {
		return
	}
	ch, err := h.svc.PatchChange(c.Request.Context(), c.Param("id"), c.Param("change_id"), data, actorFrom(c))
	if err != nil {
		mapError(c, err)
		return
	}
	render(c, http.StatusOK, gin.H{"data": ch})
}

func (h *Handler) createDocument(c *gin.Context) {
	data, ok := bindData(c)
	if !ok {
		return
	}
	d, err := h.svc.CreateDocument(c.Request.Context(), c.Param("id"), data, actorFrom(c))
	if err != nil {
		mapError(c, err)
		return
	}
	render(c, http.StatusCreated, gin.H{"data": d})
}

func (h *Handler) listDocuments(c *gin.Context) {
	cn, _, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapError(c, err)
		return
	}
	render(c, http.StatusOK, gin.H{"data": cn.Documents})
}

func (h *Handler) getDocument(c *gin.Context) {
	cn, _, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapError(c, err)
		return
	}
	d := cn.DocumentByID(c.Param("doc_id"))
	if d == nil {
		respondError(c, http.StatusNotFound, contract.FieldError{Location: "url", Name: "document_id", Description: "Not Found"})
		return
	}
	if c.Query("download") != "" {
		h.downloadDocument(c, d)
		return
	}
	render(c, http.StatusOK, gin.H{"data": d})
}

// downloadDocument redirects to the stored file: external URLs directly,
// MinIO keys via a presigned link.
func (h *Handler) downloadDocument(c *gin.Context, d *contract.Document) {
	if d.URL == "" {
		respondError(c, http.StatusNotFound, contract.FieldError{Location: "url", Name: "download", Description: "Not Found"})
		return
	}
	if strings.HasPrefix(d.URL, "http://") || strings.HasPrefix(d.URL, "https://") {
		c.Redirect(http.StatusFound, d.URL)
		return
	}
	if h.files == nil {
		respondError(c, http.StatusNotFound, contract.FieldError{Location: "url", Name: "download", Description: "Not Found"})
		return
	}
	link, err := h.files.GetPresignedURL(c.Request.Context(), d.URL, 15*time.Minute)
	if err != nil {
		mapError(c, err)
		return
	}
	c.Redirect(http.StatusFound, link)
}

func (h *Handler) patchDocument(c *gin.Context) {
	data, ok := bindData(c)
	if !ok {
		return
	}
	d, err := h.svc.PatchDocument(c.Request.Context(), c.Param("id"), c.Param("doc_id"), data, actorFrom(c))
	if err != nil {
		mapError(c, err)
		return
	}
	render(c, http.StatusOK, gin.H{"data": d})
}

func (h *Handler) uploadDocumentFile(c *gin.Context) {
	if h.files == nil {
		respondError(c, http.StatusNotFound, contract.FieldError{Location: "body", Name: "file", Description: "File storage is not configured"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, contract.FieldError{Location: "body", Name: "file", Description: "File is required"})
		return
	}
	src, err := file.Open()
	if err != nil {
		mapError(c, err)
		return
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	key := storage.DocumentKey(c.Param("id"), c.Param("doc_id"), file.Filename)
	if err := h.files.UploadFile(c.Request.Context(), key, src, file.Size, contentType); err != nil {
		mapError(c, err)
		return
	}
	d, err := h.svc.AttachFile(c.Request.Context(), c.Param("id"), c.Param("doc_id"), key, contentType, actorFrom(c))
	if err != nil {
		mapError(c, err)
		return
	}
	render(c, http.StatusOK, gin.H{"data": d})
}

func (h *Handler) listContracts(c *gin.Context) {
	feed := c.Query("feed")
	descending := isTruthy(c.Query("descending"))
	offsetStr := c.Query("offset")

	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	opts := repository.ListOptions{
		Limit:      limit,
		Descending: descending,
		Mode:       c.Query("mode"),
	}
	if of := c.Query("opt_fields"); of != "" {
		opts.OptFields = strings.Split(of, ",")
	}
	if offsetStr != "" {
		ts, err := time.Parse(time.RFC3339Nano, offsetStr)
		if err != nil {
			// only the change feed rejects a broken cursor; the plain
			// listing starts over instead
			if feed == "changes" {
				mapError(c, contract.ErrOffsetInvalid)
				return
			}
		} else {
			opts.Offset = &ts
		}
	}

	items, err := h.svc.List(c.Request.Context(), opts)
	if err != nil {
		mapError(c, err)
		return
	}

	data := make([]map[string]any, 0, len(items))
	for _, it := range items {
		row := map[string]any{
			"id":           it.ID,
			"dateModified": it.DateModified.Format(time.RFC3339Nano),
		}
		for k, v := range it.Fields {
			row[k] = v
		}
		data = append(data, row)
	}

	nextOffset := offsetStr
	if len(items) > 0 {
		nextOffset = items[len(items)-1].DateModified.Format(time.RFC3339Nano)
	}
	resp := gin.H{
		"data":      data,
		"next_page": pageRef(c, nextOffset, descending),
	}
	// prev_page exists whenever the request already moved off the natural
	// start of the ascending order; its link walks the opposite direction
	if offsetStr != "" || descending {
		prevOffset := ""
		if len(items) > 0 {
			prevOffset = items[0].DateModified.Format(time.RFC3339Nano)
		}
		resp["prev_page"] = pageRef(c, prevOffset, !descending)
	}
	render(c, http.StatusOK, resp)
}

// pageRef builds one page link preserving the request's own query params.
func pageRef(c *gin.Context, offset string, descending bool) gin.H {
	params := url.Values{}
	for k, vs := range c.Request.URL.Query() {
		switch k {
		case "offset", "descending":
		default:
			params[k] = vs
		}
	}
	if descending {
		params.Set("descending", "1")
	}
	params.Set("offset", offset)

	path := RoutePrefix + "/contracts?" + params.Encode()
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	host := c.Request.Host
	if host == "" {
		host = "localhost"
	}
	return gin.H{"offset": offset, "path": path, "uri": scheme + "://" + host + path}
}

func isTruthy(v string) bool {
	return v != "" && v != "0" && !strings.EqualFold(v, "false")
}
