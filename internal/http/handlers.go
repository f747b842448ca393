package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/fyrsmithlabs/codesearch/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const markdownContentType = "text/markdown; charset=utf-8"

// handleHealth handles GET /health.
func (s *Server) handleHealth(c echo.Context) error {
	if err := s.svc.Ping(c.Request().Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Error: err.Error()})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "healthy"})
}

// handleAddRepository handles POST /api/repositories.
func (s *Server) handleAddRepository(c echo.Context) error {
	var req AddRepositoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Type != "" && req.Type != "local" {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unsupported repository type %q", req.Type))
	}

	repo, err := s.svc.AddRepository(c.Request().Context(), req.Name, req.Path)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newRepositoryResponse(repo))
}

// handleListRepositories handles GET /api/repositories.
func (s *Server) handleListRepositories(c echo.Context) error {
	repos, err := s.svc.ListRepositories(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]RepositoryResponse, 0, len(repos))
	for _, r := range repos {
		out = append(out, newRepositoryResponse(r))
	}
	return c.JSON(http.StatusOK, out)
}

// handleGetRepository handles GET /api/repositories/:id.
func (s *Server) handleGetRepository(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	repo, err := s.svc.GetRepository(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newRepositoryResponse(repo))
}

// handleDeleteRepository handles DELETE /api/repositories/:id.
func (s *Server) handleDeleteRepository(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.svc.DeleteRepository(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handleIndexRepository handles POST /api/repositories/:id/index.
func (s *Server) handleIndexRepository(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	n, err := s.svc.IndexRepository(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, IndexResponse{
		RepositoryID:    id,
		SnippetsIndexed: n,
		Message:         fmt.Sprintf("indexed %d snippets", n),
	})
}

// handleRepositoryFile handles GET /api/repositories/:id/file?path=.
func (s *Server) handleRepositoryFile(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	content, err := s.svc.GetRepositoryFile(c.Request().Context(), id, c.QueryParam("path"))
	if err != nil {
		return err
	}
	return c.String(http.StatusOK, content)
}

// handleSearch handles GET /api/search?query=&repoId=.
func (s *Server) handleSearch(c echo.Context) error {
	repoID, err := optionalRepoID(c)
	if err != nil {
		return err
	}
	results, err := s.svc.Search(c.Request().Context(), c.QueryParam("query"), repoID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results})
}

// handleSearchExport handles GET /api/search/export and returns Markdown.
func (s *Server) handleSearchExport(c echo.Context) error {
	repoID, err := optionalRepoID(c)
	if err != nil {
		return err
	}
	md, err := s.svc.ExportSearch(c.Request().Context(), c.QueryParam("query"), repoID)
	if err != nil {
		return err
	}
	return markdown(c, "search_results.md", md)
}

// handleGetSnippet handles GET /api/code/:id.
func (s *Server) handleGetSnippet(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	sn, err := s.svc.GetSnippet(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SnippetResponse{Snippet: sn, Repository: sn.RepositoryName})
}

// handleExplainSnippet handles POST /api/code/:id/explain.
func (s *Server) handleExplainSnippet(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	out, err := s.svc.ExplainSnippet(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ExplainResponse{Explanation: out})
}

// handleSnippetExport handles GET /api/code/:id/export.
func (s *Server) handleSnippetExport(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	sn, err := s.svc.GetSnippet(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return markdown(c, fmt.Sprintf("snippet_%d.md", id), service.ExportSnippetMarkdown(sn))
}

// handleListHistory handles GET /api/history.
func (s *Server) handleListHistory(c echo.Context) error {
	entries, err := s.svc.ListHistory(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

// handleDeleteHistory handles DELETE /api/history/:id.
func (s *Server) handleDeleteHistory(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.svc.DeleteHistoryEntry(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handleIndexStatus handles GET /api/index.
func (s *Server) handleIndexStatus(c echo.Context) error {
	m, err := s.svc.IndexStatus(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id must be a positive integer")
	}
	return id, nil
}

func optionalRepoID(c echo.Context) (*int64, error) {
	raw := c.QueryParam("repoId")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "repoId must be an integer")
	}
	return &id, nil
}

func markdown(c echo.Context, filename, body string) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, markdownContentType, []byte(body))
}
