package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/document"
)

type listRequest struct {
	UnitID   string `form:"unit_id"`
	OwnerID  string `form:"owner_id"`
	Status   string `form:"status"`
	Tag      string `form:"tag"`
	Page     int    `form:"page" binding:"min=0"`
	PageSize int    `form:"page_size" binding:"min=0"`
}

type searchRequest struct {
	Query string `form:"q"`
	TopK  int    `form:"top_k" binding:"min=0"`
}

func (s *Server) createDocument(c *gin.Context) {
	var in document.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	doc, err := s.svc.Create(c.Request.Context(), actor(c), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (s *Server) listDocuments(c *gin.Context) {
	var req listRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	page, err := s.svc.List(c.Request.Context(), actor(c), document.ListQuery{
		UnitID:   req.UnitID,
		OwnerID:  req.OwnerID,
		Status:   document.Status(req.Status),
		Tag:      req.Tag,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getDocument(c *gin.Context) {
	doc, err := s.svc.Get(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) updateDocument(c *gin.Context) {
	var in document.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	doc, err := s.svc.Update(c.Request.Context(), actor(c), c.Param("id"), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) deleteDocument(c *gin.Context) {
	if err := s.svc.Delete(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) reindexDocument(c *gin.Context) {
	doc, err := s.svc.Reindex(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.svc.Search(c.Request.Context(), actor(c), document.SearchQuery{Query: req.Query, TopK: req.TopK})
	if err != nil {
		s.writeError(c, err)
		return
	}
	if res.Degraded {
		s.logger.InfoContext(c.Request.Context(), "search served from local index",
			clog.String("reason", res.Reason), clog.Int("hits", len(res.Hits)))
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) vendorStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.VendorStatus())
}

func (s *Server) resetVendor(c *gin.Context) {
	s.svc.ResetVendor()
	s.logger.WarnContext(c.Request.Context(), "vendor circuit reset", clog.String("by", actor(c).UserID))
	c.JSON(http.StatusOK, s.svc.VendorStatus())
}

func (s *Server) reprocess(c *gin.Context) {
	st, err := s.opts.reprocessor.RunOnce(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
