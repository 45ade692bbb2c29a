package api

import (
	"net/http"
	"strconv"

	"PPSignal/service/mgo"
	"PPSignal/tools/security"

	"github.com/gin-gonic/gin"
)

const (
	maxContent = 5000
	maxIDLen   = 100
	maxURLLen  = 500
)

type sendMessageReq struct {
	Content        string `json:"content"`
	SenderID       string `json:"sender_id"`
	ConversationID string `json:"conversation_id"`
	ImageURL       string `json:"image_url"`
}

// SendMessage encrypts the content when a key is configured and stores it.
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageReq
	if !bind(c, &req) {
		return
	}
	if req.Content == "" || len(req.Content) > maxContent {
		badRequest(c, "content must be 1-5000 characters")
		return
	}
	sender, ok := validID(req.SenderID, maxIDLen)
	if !ok {
		badRequest(c, "invalid sender_id")
		return
	}
	conv, ok := validID(req.ConversationID, maxIDLen)
	if !ok {
		badRequest(c, "invalid conversation_id")
		return
	}
	if len(req.ImageURL) > maxURLLen {
		badRequest(c, "image_url too long")
		return
	}

	content, encrypted := h.d.Cipher.Encrypt(req.Content)
	m := &mgo.Message{
		ConversationID: conv,
		SenderID:       sender,
		Content:        content,
		ImageURL:       req.ImageURL,
		Encrypted:      encrypted,
	}
	id, err := h.d.Messages.Insert(c.Request.Context(), m)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"message_id": id,
		"encrypted":  encrypted,
		"timestamp":  now(),
	})
}

type messageView struct {
	mgo.Message
	Decrypted bool `json:"_decrypted"`
}

type decryptStats struct {
	Total     int `json:"total"`
	Decrypted int `json:"decrypted"`
	Encrypted int `json:"encrypted"`
	Failed    int `json:"failed"`
	Plaintext int `json:"plaintext"`
}

// GetMessages returns the latest messages oldest first, decrypting them
// unless ?decrypt=false.
func (h *Handler) GetMessages(c *gin.Context) {
	conv, ok := validID(c.Param("conversation_id"), maxIDLen)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"messages": []messageView{}, "error": "invalid conversation_id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	decrypt := true
	if v, err := strconv.ParseBool(c.DefaultQuery("decrypt", "true")); err == nil {
		decrypt = v
	}

	msgs, err := h.d.Messages.Recent(c.Request.Context(), conv, limit)
	if err != nil {
		fail(c, err)
		return
	}

	stats := decryptStats{Total: len(msgs)}
	views := make([]messageView, len(msgs))
	// Recent is newest first
	for i, m := range msgs {
		v := messageView{Message: m}
		if security.LooksEncrypted(m.Content) {
			stats.Encrypted++
			v.Encrypted = true
			if decrypt && h.d.Cipher.Initialized() {
				if plain, ok := h.d.Cipher.Decrypt(m.Content); ok {
					v.Content = plain
					v.Decrypted = true
					stats.Decrypted++
				} else {
					stats.Failed++
				}
			}
		} else {
			stats.Plaintext++
			v.Encrypted = false
			v.Decrypted = true
		}
		views[len(msgs)-1-i] = v
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": views,
		"metadata": gin.H{
			"conversation_id":      conv,
			"count":                len(views),
			"stats":                stats,
			"decryption_enabled":   decrypt,
			"encryption_available": h.d.Cipher.Initialized(),
		},
	})
}

type decryptReq struct {
	Content string `json:"content"`
}

func (h *Handler) DecryptMessage(c *gin.Context) {
	var req decryptReq
	if !bind(c, &req) {
		return
	}
	if !h.d.Cipher.Initialized() {
		c.JSON(http.StatusOK, gin.H{"decrypted": "[ENCRYPTION DISABLED]", "success": false})
		return
	}
	if req.Content == "" {
		c.JSON(http.StatusOK, gin.H{"decrypted": "", "success": false})
		return
	}
	plain, ok := h.d.Cipher.Decrypt(req.Content)
	c.JSON(http.StatusOK, gin.H{
		"decrypted":     plain,
		"success":       ok,
		"was_encrypted": security.LooksEncrypted(req.Content),
		"timestamp":     now(),
	})
}
