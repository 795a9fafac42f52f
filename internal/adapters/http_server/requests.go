package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/app"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

const (
	// DefaultMaxImageBytes applies when Handlers.MaxImageBytes is unset.
	DefaultMaxImageBytes = 2 << 20

	smallBodyBytes = 16 << 10
	formOverhead   = 64 << 10
)

var errTooLarge = errors.New("request body too large")

func limitBody(w http.ResponseWriter, r *http.Request, n int64) {
	r.Body = http.MaxBytesReader(w, r.Body, n)
}

// reviewBodyLimit leaves room for the base64 form of the image plus the
// text fields and multipart framing.
func reviewBodyLimit(maxImage int) int64 {
	return (int64(maxImage)+2)/3*4 + formOverhead
}

func bodyErr(what string, err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%w: limit is %d bytes", errTooLarge, mbe.Limit)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrInvalid, what, err)
}

type verifyRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type voteRequest struct {
	Vote string `json:"vote" validate:"required,oneof=like dislike"`
}

// reviewRequest is shared by create and update. Image is a base64 data URL
// for JSON clients; multipart clients send an "image" file instead.
type reviewRequest struct {
	Title       string  `json:"title" validate:"required,max=120"`
	Review      string  `json:"review" validate:"required,max=280"`
	Category    string  `json:"category" validate:"required,oneof=movie show book podcast game"`
	Rating      float64 `json:"rating"`
	Image       string  `json:"image,omitempty"`
	RemoveImage bool    `json:"remove_image,omitempty"`

	imageBytes []byte
}

func (rr reviewRequest) draft() domain.ReviewDraft {
	return domain.ReviewDraft{
		Title:    rr.Title,
		Body:     rr.Review,
		Category: domain.Category(rr.Category),
		Rating:   rr.Rating,
	}
}

// trim runs before the length tags so padding never counts.
func (rr *reviewRequest) trim() {
	rr.Title = strings.TrimSpace(rr.Title)
	rr.Review = strings.TrimSpace(rr.Review)
	rr.Category = strings.ToLower(strings.TrimSpace(rr.Category))
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", domain.ErrInvalid)
		}
		return bodyErr("malformed JSON", err)
	}
	return nil
}

// check runs the struct tags and reports the first failing field.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			return fmt.Errorf("%w: %s is required", domain.ErrInvalid, field)
		case "max":
			return fmt.Errorf("%w: %s must be at most %s characters", domain.ErrInvalid, field, fe.Param())
		case "oneof":
			return fmt.Errorf("%w: %s must be one of %s", domain.ErrInvalid, field, fe.Param())
		}
		return fmt.Errorf("%w: %s failed %s", domain.ErrInvalid, field, fe.Tag())
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalid, err)
}

// readReview accepts application/json or multipart/form-data.
func readReview(w http.ResponseWriter, r *http.Request, maxImage int) (reviewRequest, error) {
	var rr reviewRequest
	if maxImage <= 0 {
		maxImage = DefaultMaxImageBytes
	}
	limit := reviewBodyLimit(maxImage)
	if r.ContentLength > limit {
		return rr, fmt.Errorf("%w: limit is %d bytes", errTooLarge, limit)
	}
	limitBody(w, r, limit)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		if err := decodeJSON(r, &rr); err != nil {
			return rr, err
		}
		rr.trim()
		if err := check(&rr); err != nil {
			return rr, err
		}
		if rr.Image != "" {
			b, err := app.DecodeDataURL(rr.Image)
			if err != nil {
				return rr, err
			}
			rr.imageBytes = b
		}
		return rr, nil
	}

	if err := r.ParseMultipartForm(int64(maxImage) + 1<<20); err != nil {
		return rr, bodyErr("malformed form", err)
	}
	rr.Title = r.FormValue("title")
	rr.Review = r.FormValue("review")
	rr.Category = r.FormValue("category")
	rr.trim()
	rr.Rating = parseRating(r.FormValue("rating"))
	rr.RemoveImage, _ = strconv.ParseBool(r.FormValue("remove_image"))

	if f, _, err := r.FormFile("image"); err == nil {
		defer f.Close()
		b, err := io.ReadAll(io.LimitReader(f, int64(maxImage)+1))
		if err != nil {
			return rr, bodyErr("unreadable image", err)
		}
		rr.imageBytes = b
	} else if !errors.Is(err, http.ErrMissingFile) {
		return rr, fmt.Errorf("%w: image: %v", domain.ErrInvalid, err)
	}
	return rr, check(&rr)
}

// parseRating treats anything unparsable as 0; the domain clamps the rest.
func parseRating(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return f
}
