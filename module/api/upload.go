package api

import (
	"net/http"
	"net/url"

	"PPSignal/service/upload"
	"PPSignal/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

func (h *Handler) UploadChunk(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.d.MaxChunkBytes)
	var req upload.Chunk
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, Msg{
				Code: errs.ArgsError, Msg: "ArgsError", Detail: "chunk body too large",
			})
			return
		}
		badRequest(c, "invalid json body: "+err.Error())
		return
	}
	p, err := h.d.Uploads.Add(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	if !p.Complete {
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"complete":  false,
			"upload_id": p.UploadID,
			"received":  p.Received,
			"total":     p.Total,
			"progress":  p.Percent,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"complete":  true,
		"upload_id": p.UploadID,
		"file_id":   p.File.ID,
		"file_url":  "/api/files/" + url.PathEscape(p.File.ID),
		"file_size": p.File.Size,
	})
}

// File streams a stored upload back.
func (h *Handler) File(c *gin.Context) {
	info, data, err := h.d.Files.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+url.PathEscape(info.Name)+`"`)
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}
