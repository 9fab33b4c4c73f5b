package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	invoicedomain "github.com/Nikjeremic/uptiomio/internal/invoice/domain"
	"github.com/Nikjeremic/uptiomio/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

type listInvoicesQuery struct {
	Search string `form:"search"`
	Status string `form:"status"`
	pagination.Pagination
}

func (q listInvoicesQuery) request() invoicedomain.ListInvoiceRequest {
	return invoicedomain.ListInvoiceRequest{
		Search:     strings.TrimSpace(q.Search),
		Status:     q.Status,
		Pagination: q.Pagination,
	}
}

type markPaidRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invoiceSvc.Create(c.Request.Context(), actor, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": inv})
}

func (s *Server) ListInvoices(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var query listInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), actor, query.request())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) ListMyInvoices(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var query listInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.ListMine(c.Request.Context(), actor, query.request())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) GetInvoice(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	inv, err := s.invoiceSvc.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) DownloadInvoicePDF(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	inv, err := s.invoiceSvc.Get(ctx, actor, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, filename, err := s.renderer.RenderPDF(ctx, *inv)
	if err != nil {
		AbortWithError(c, fmt.Errorf("render invoice pdf: %w", err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) MarkInvoicePaid(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req markPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invoiceSvc.MarkPaid(c.Request.Context(), actor, c.Param("id"), req.PaymentMethod)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) UpdateReminderConfig(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var patch invoicedomain.ReminderConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invoiceSvc.UpdateReminderConfig(c.Request.Context(), actor, c.Param("id"), patch)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	if err := s.invoiceSvc.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) SendReminder(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := s.invoiceSvc.SendReminder(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
