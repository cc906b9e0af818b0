// MODUL: handlers
// ZWECK: HTTP-Handler fuer Encoder, Decoder und Manifold
// INPUT: JSON-Latents, Bilddaten (PNG/JPEG/WebP) im Request-Body
// OUTPUT: JSON (Posterior, Pixel) oder PNG
// NEBENEFFEKTE: Keine, das Modell wird nur gelesen
// ABHAENGIGKEITEN: gin, vision, model/vae
// HINWEISE: Manifold und Decode benutzen ausschliesslich den Decoder.

package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/7blacky7/vae/ml"
	"github.com/7blacky7/vae/model/vae"
	"github.com/7blacky7/vae/store"
	"github.com/7blacky7/vae/vision"
)

const (
	maxImageBytes   = 32 << 20
	maxManifoldSize = 50
	maxDecodeBatch  = 256
)

// ConfigResponse beschreibt das geladene Modell
type ConfigResponse struct {
	Config vae.Config `json:"config"`
	Params int        `json:"params"`
	Step   int        `json:"step"`
	Loss   float64    `json:"loss"`
	RunID  string     `json:"run_id,omitempty"`
}

// EncodeResponse ist die Posterior eines Bildes
type EncodeResponse struct {
	Mean   []float32 `json:"mean"`
	LogVar []float32 `json:"log_var"`
}

// DecodeRequest enthaelt einen oder mehrere Latent-Vektoren
type DecodeRequest struct {
	Z      [][]float32 `json:"z"`
	Format string      `json:"format,omitempty"`
}

// DecodeResponse enthaelt die Pixel in NHWC
type DecodeResponse struct {
	Shape  []int     `json:"shape"`
	Pixels []float32 `json:"pixels"`
}

func (s *Server) ConfigHandler(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.JSON(http.StatusOK, ConfigResponse{
		Config: s.model.Config,
		Params: s.model.NumParams(),
		Step:   s.meta.Step,
		Loss:   s.meta.Loss,
		RunID:  s.meta.RunID,
	})
}

// EncodeHandler liest ein Bild aus dem Body und gibt mean und log_var zurueck
func (s *Server) EncodeHandler(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImageBytes+1))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(data) > maxImageBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	img, err := vision.LoadImageFromBytes(data)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := s.model.Config
	x, err := vision.Tensor(img, vision.WithSize(cfg.Width, cfg.Height), vision.WithChannels(cfg.Channels), vision.WithCenterCrop(true))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	x, err = x.Reshape(1, cfg.Height, cfg.Width, cfg.Channels)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	post, err := s.model.Encode(x)
	s.mu.Unlock()
	if err != nil {
		slog.Error("encode failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, EncodeResponse{Mean: post.Mean.Row(0), LogVar: post.LogVar.Row(0)})
}

// DecodeHandler dekodiert Latents als PNG-Streifen (Default) oder als JSON
func (s *Server) DecodeHandler(c *gin.Context) {
	var req DecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	z, err := s.latents(req.Z)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Format {
	case "", "png", "json":
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown format %q", req.Format)})
		return
	}

	s.mu.Lock()
	imgs, err := s.model.Decode(z)
	s.mu.Unlock()
	if err != nil {
		slog.Error("decode failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if req.Format == "json" {
		c.JSON(http.StatusOK, DecodeResponse{Shape: imgs.Shape, Pixels: imgs.Data})
		return
	}

	strip, err := horizontalStrip(imgs)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	writePNG(c, strip)
}

// latents prueft Anzahl und Laenge der Vektoren gegen die Modell-Config
func (s *Server) latents(rows [][]float32) (*ml.Tensor, error) {
	dim := s.model.Config.LatentDim
	if len(rows) == 0 || len(rows) > maxDecodeBatch {
		return nil, fmt.Errorf("z must contain between 1 and %d vectors, got %d", maxDecodeBatch, len(rows))
	}

	z := ml.New(len(rows), dim)
	for i, row := range rows {
		if err := ml.CheckShape("z", ml.Shape{dim}, ml.Shape{len(row)}); err != nil {
			return nil, fmt.Errorf("z[%d]: %w", i, err)
		}
		copy(z.Row(i), row)
	}
	if !z.AllFinite() {
		return nil, errors.New("z contains NaN or Inf")
	}
	return z, nil
}

// horizontalStrip legt [n, h, w, c] nebeneinander zu [h, n*w, c]
func horizontalStrip(imgs *ml.Tensor) (*ml.Tensor, error) {
	n, h, w, ch := imgs.Dim(0), imgs.Dim(1), imgs.Dim(2), imgs.Dim(3)
	t, err := ml.Permute(imgs, 1, 0, 2, 3)
	if err != nil {
		return nil, err
	}
	return t.Reshape(h, n*w, ch)
}

// ManifoldHandler rendert das Latent-Gitter, Parameter n, min und max
func (s *Server) ManifoldHandler(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("n", "20"))
	if err != nil || n < 1 || n > maxManifoldSize {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("n must be between 1 and %d", maxManifoldSize)})
		return
	}
	lo, err := strconv.ParseFloat(c.DefaultQuery("min", "-3"), 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid min"})
		return
	}
	hi, err := strconv.ParseFloat(c.DefaultQuery("max", "3"), 64)
	if err != nil || hi < lo {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid max"})
		return
	}

	s.mu.Lock()
	canvas, err := vae.Manifold(s.model, n, lo, hi)
	s.mu.Unlock()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	writePNG(c, canvas)
}

func writePNG(c *gin.Context, t *ml.Tensor) {
	var buf bytes.Buffer
	if err := vision.EncodePNG(&buf, t); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (s *Server) RunsHandler(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	runs, err := s.runs.Runs(limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) RunHandler(c *gin.Context) {
	id := c.Param("id")
	run, err := s.runs.Run(id)
	if errors.Is(err, store.ErrRunNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	steps, err := s.runs.Steps(id)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "steps": steps})
}

func (s *Server) DeleteRunHandler(c *gin.Context) {
	err := s.runs.DeleteRun(c.Param("id"))
	if errors.Is(err, store.ErrRunNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}
