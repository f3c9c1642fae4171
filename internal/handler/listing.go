package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/templui/picsellart/internal/ctxkeys"
	"github.com/templui/picsellart/internal/model"
	"github.com/templui/picsellart/internal/repository"
	"github.com/templui/picsellart/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type ListingHandler struct {
	catalog   *service.Catalog
	photos    *service.PhotoService
	access    *service.AccessGate
	maxUpload int64
}

func NewListingHandler(catalog *service.Catalog, photos *service.PhotoService, access *service.AccessGate, maxUpload int64) *ListingHandler {
	return &ListingHandler{
		catalog:   catalog,
		photos:    photos,
		access:    access,
		maxUpload: maxUpload,
	}
}

func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ListingFilter{
		Tag:   strings.ToLower(strings.TrimSpace(q.Get("tag"))),
		Limit: defaultListLimit,
	}

	switch seller := q.Get("seller"); seller {
	case "":
	case "me":
		identity := ctxkeys.Identity(r.Context())
		if identity == nil {
			writeError(w, r, service.ErrUnauthenticated)
			return
		}
		filter.SellerID = identity.UID
	default:
		filter.SellerID = seller
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, r, service.ValidationError("limit must be a positive integer"))
			return
		}
		filter.Limit = min(limit, maxListLimit)
	}

	listings := make([]*model.PublicListing, 0, filter.Limit)
	for listing, err := range h.catalog.ListAll(r.Context(), filter) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		listings = append(listings, listing)
	}

	writeJSON(w, http.StatusOK, listings)
}

func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	listing, err := h.catalog.GetListing(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// Create publishes a photo from multipart fields image, title, price (minor
// units) and tags (repeated or comma separated).
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := ctxkeys.Identity(r.Context())

	// multipart overhead on top of the image itself
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	err := r.ParseMultipartForm(32 << 20)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, r, err)
			return
		}
		writeError(w, r, service.ValidationError("invalid multipart form"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, r, service.ValidationError("image is required"))
		return
	}
	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			slog.Error("failed to close uploaded file", "error", closeErr)
		}
	}()

	image, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if int64(len(image)) > h.maxUpload {
		writeError(w, r, service.ValidationError("image is too large"))
		return
	}

	price, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("price")), 10, 64)
	if err != nil {
		writeError(w, r, service.ValidationError("price must be an integer amount in minor units"))
		return
	}

	var tags []string
	for _, v := range r.MultipartForm.Value["tags"] {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	listing, err := h.photos.SecureCreatePhoto(r.Context(), *identity, service.PhotoUpload{
		Title: r.FormValue("title"),
		Price: price,
		Tags:  tags,
		Image: image,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, listing)
}

// Original returns a short-lived download link for a purchased original.
func (h *ListingHandler) Original(w http.ResponseWriter, r *http.Request) {
	identity := ctxkeys.Identity(r.Context())

	signed, err := h.access.GetOriginalURL(r.Context(), identity.UID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, signed)
}
