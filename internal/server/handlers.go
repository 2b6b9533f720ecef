package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"voice_rag/internal/domain"
	"voice_rag/internal/kb"
	"voice_rag/internal/loader"
)

type textRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type askRequest struct {
	Question string `json:"question"`
}

// uploadDocuments принимает multipart-поле files, формат можно задать полем format
func (s *Server) uploadDocuments(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "expected multipart form with files")
	}
	files := form.File["files"]
	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files uploaded")
	}

	var format domain.Format
	if raw := c.FormValue("format"); raw != "" {
		if format, err = domain.ParseFormat(raw); err != nil {
			return err
		}
	}

	uploads := make([]loader.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("read upload %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, loader.Upload{Name: fh.Filename, Data: data, Format: format})
	}

	report, err := s.svc.IngestFiles(c.Request().Context(), uploads)
	return s.reportResponse(c, report, err)
}

func (s *Server) addText(c echo.Context) error {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	report, err := s.svc.AddText(c.Request().Context(), req.Name, req.Text)
	return s.reportResponse(c, report, err)
}

// reportResponse: при прерванной загрузке отдаём и ошибку, и частичный отчёт
func (s *Server) reportResponse(c echo.Context, report kb.IngestReport, err error) error {
	if err != nil {
		code, msg := statusFor(err)
		s.logger.Printf("%d ingest aborted: %v", code, err)
		return c.JSON(code, map[string]interface{}{"error": msg, "report": report})
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) clear(c echo.Context) error {
	if err := s.svc.Clear(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) removeDocument(c echo.Context) error {
	source := c.Param("source")
	removed, err := s.svc.RemoveDocument(c.Request().Context(), source)
	if err != nil {
		return err
	}
	if removed == 0 {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("document %q not found", source))
	}
	return c.JSON(http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Stats())
}

func (s *Server) search(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	results, err := s.svc.Search(c.Request().Context(), req.Query, req.K)
	if err != nil {
		return err
	}
	if results == nil {
		results = []kb.Result{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	answer, err := s.svc.Ask(c.Request().Context(), req.Question)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, answer)
}
