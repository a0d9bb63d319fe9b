package webui

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"romrando/engine"
	"romrando/store"
)

type CheckResponse struct {
	Exists         bool   `json:"exists"`
	StoredFilename string `json:"stored_filename"`
}

type UploadResponse struct {
	Success        bool   `json:"success"`
	StoredFilename string `json:"stored_filename"`
}

type PresetsResponse struct {
	Game    string   `json:"game"`
	Presets []string `json:"presets"`
}

type RandomizeResponse struct {
	Success     bool   `json:"success"`
	DownloadURL string `json:"download_url"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type checkArgs struct {
	Checksum string `json:"checksum" form:"checksum"`
	Ext      string `json:"ext" form:"ext"`
}

type presetsArgs struct {
	StoredFilename string `json:"stored_filename" form:"stored_filename"`
}

type randomizeArgs struct {
	StoredFilename string `json:"stored_filename" form:"stored_filename"`
	Preset         string `json:"preset" form:"preset"`
}

// handlerError is a request problem reported to the caller as-is.
type handlerError struct {
	statusCode int
	message    string
}

func (e *handlerError) Error() string {
	return e.message
}

var (
	errMissingChecksum  = &handlerError{http.StatusBadRequest, "Missing checksum or extension"}
	errNoFile           = &handlerError{http.StatusBadRequest, "No file uploaded"}
	errTooLarge         = &handlerError{http.StatusRequestEntityTooLarge, "File too large"}
	errMissingFilename  = &handlerError{http.StatusBadRequest, "Missing stored_filename"}
	errMissingParams    = &handlerError{http.StatusBadRequest, "Missing parameters"}
	errFileNotFound     = &handlerError{http.StatusNotFound, "File not found"}
	errROMFileNotFound  = &handlerError{http.StatusNotFound, "ROM file not found"}
	errUnknownCommand   = &handlerError{http.StatusNotFound, "Unknown command"}
	errMalformedCommand = &handlerError{http.StatusBadRequest, "Malformed command"}
)

// apiError maps an error from the store or controller to a status code and response body.
func apiError(err error) (int, ErrorResponse) {
	var he *handlerError
	var te *engine.TransformationError

	switch {
	case errors.As(err, &he):
		return he.statusCode, ErrorResponse{Error: he.message}
	case errors.Is(err, store.ErrInvalidName):
		return http.StatusBadRequest, ErrorResponse{Error: "Invalid checksum or extension"}
	case errors.Is(err, store.ErrIntegrityMismatch):
		return http.StatusBadRequest, ErrorResponse{Error: "Checksum mismatch"}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "ROM file not found"}
	case errors.Is(err, store.ErrUnrecognized):
		return http.StatusBadRequest, ErrorResponse{Error: "Unrecognized ROM file"}
	case errors.Is(err, engine.ErrUnsupported):
		return http.StatusBadRequest, ErrorResponse{Error: "Unsupported ROM file"}
	case errors.Is(err, engine.ErrInvalidPreset):
		return http.StatusBadRequest, ErrorResponse{Error: "Invalid preset selection"}
	case errors.Is(err, engine.ErrConfigurationMissing):
		return http.StatusInternalServerError, ErrorResponse{Error: "Preset file not found", Details: err.Error()}
	case errors.As(err, &te):
		return http.StatusInternalServerError, ErrorResponse{Error: "Randomization failed", Details: te.Details}
	case errors.Is(err, engine.ErrOutputNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "File not found"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"}
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, body := apiError(err)
	if status >= 500 {
		s.logger.Error("request failed", "path", c.Request.URL.Path, "err", err, "rid", c.GetString(requestIDHeader))
	}
	c.JSON(status, body)
}

// Check reports whether a ROM with this fingerprint and extension is already stored.
func (s *Server) Check(checksum, ext string) (CheckResponse, error) {
	if checksum == "" || ext == "" {
		return CheckResponse{}, errMissingChecksum
	}
	a, err := s.store.Ref(checksum, ext)
	if err != nil {
		return CheckResponse{}, err
	}
	exists, err := s.store.Exists(a)
	if err != nil {
		return CheckResponse{}, err
	}
	s.logger.Debug("client checksum", "ext", a.Ext, "checksum", checksum, "exists", exists)
	return CheckResponse{Exists: exists, StoredFilename: a.Name()}, nil
}

// Upload stores r under the claimed fingerprint, verifying it afterwards.
func (s *Server) Upload(checksum, ext string, r io.Reader) (UploadResponse, error) {
	if checksum == "" || ext == "" {
		return UploadResponse{}, errMissingChecksum
	}
	a, err := s.store.Ref(checksum, ext)
	if err != nil {
		return UploadResponse{}, err
	}
	if _, err = s.store.Save(a, r); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return UploadResponse{}, errTooLarge
		}
		return UploadResponse{}, err
	}
	return UploadResponse{Success: true, StoredFilename: a.Name()}, nil
}

// Presets identifies a stored ROM and lists the presets offered for it.
func (s *Server) Presets(storedFilename string) (PresetsResponse, error) {
	if storedFilename == "" {
		return PresetsResponse{}, errMissingFilename
	}
	a, err := s.store.Parse(storedFilename)
	if err != nil {
		return PresetsResponse{}, errFileNotFound
	}
	g, err := s.store.Identify(a)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return PresetsResponse{}, errFileNotFound
		}
		return PresetsResponse{}, err
	}
	return PresetsResponse{Game: g.Name, Presets: g.Presets}, nil
}

// Randomize runs the randomizer over a stored ROM and returns where to download the result.
func (s *Server) Randomize(ctx context.Context, storedFilename, preset string) (RandomizeResponse, error) {
	if storedFilename == "" || preset == "" {
		return RandomizeResponse{}, errMissingParams
	}
	a, err := s.store.Parse(storedFilename)
	if err != nil {
		return RandomizeResponse{}, errROMFileNotFound
	}
	out, err := s.ctl.Randomize(ctx, a, preset)
	if err != nil {
		return RandomizeResponse{}, err
	}
	return RandomizeResponse{Success: true, DownloadURL: "/download/" + url.PathEscape(out.File)}, nil
}

func (s *Server) handleCheckROM(c *gin.Context) {
	var args checkArgs
	if err := c.ShouldBind(&args); err != nil {
		s.fail(c, errMissingChecksum)
		return
	}
	rsp, err := s.Check(args.Checksum, args.Ext)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rsp)
}

func (s *Server) handleUploadROM(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUpload)

	fh, err := c.FormFile("romfile")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.fail(c, errTooLarge)
			return
		}
		s.fail(c, errNoFile)
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer f.Close()

	rsp, err := s.Upload(c.PostForm("checksum"), c.PostForm("ext"), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rsp)
}

func (s *Server) handleGetPresets(c *gin.Context) {
	var args presetsArgs
	if err := c.ShouldBind(&args); err != nil {
		s.fail(c, errMissingFilename)
		return
	}
	rsp, err := s.Presets(args.StoredFilename)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rsp)
}

func (s *Server) handleRandomize(c *gin.Context) {
	var args randomizeArgs
	if err := c.ShouldBind(&args); err != nil {
		s.fail(c, errMissingParams)
		return
	}
	rsp, err := s.Randomize(c.Request.Context(), args.StoredFilename, args.Preset)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rsp)
}

func (s *Server) handleDownload(c *gin.Context) {
	d, err := s.ctl.Claim(c.Param("filename"))
	if err != nil {
		s.fail(c, err)
		return
	}
	// the output goes away even if the client hangs up mid-stream:
	defer func() {
		if err := d.Close(); err != nil {
			s.logger.Warn("could not delete served output", "file", d.File, "err", err)
		}
	}()

	c.DataFromReader(http.StatusOK, d.Size, d.ContentType, d, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": d.Name}),
	})
}
