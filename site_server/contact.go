package main

import (
	"context"
	"fmt"
	"log"
	"schoolsite/db"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HandleContactSubmit runs the contact pipeline: validation, spam check,
// persistence, then a best-effort admin notification. The route itself is
// behind the contact rate policy.
func HandleContactSubmit(c *gin.Context) {
	var form ContactForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(400, gin.H{"success": false, "message": "Invalid request payload"})
		return
	}

	if errs := validateContactForm(&form); len(errs) > 0 {
		c.JSON(400, gin.H{"success": false, "errors": errs})
		return
	}
	form.sanitize()

	spam := spamFilter.IsSpam(form.Message, form.Subject)
	status := statusUnread
	if spam {
		status = statusSpam
	}

	now := time.Now().UTC()
	msg := &ContactMessage{
		ID:        uuid.NewString(),
		Name:      form.Name,
		Email:     form.Email,
		Phone:     form.Phone,
		Subject:   form.Subject,
		Message:   form.Message,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := insertContactMessage(c.Request.Context(), msg); err != nil {
		log.Println("Contact form insert error:", err)
		c.JSON(500, gin.H{"success": false, "message": "An error occurred while sending your message. Please try again later."})
		return
	}

	if !spam {
		sendContactNotification(msg)
	}

	c.JSON(201, gin.H{
		"success":   true,
		"message":   "Your message has been sent successfully. We will contact you soon!",
		"messageId": msg.ID,
	})
}

func insertContactMessage(ctx context.Context, msg *ContactMessage) error {
	_, err := db.SiteDB.ExecContext(ctx,
		`INSERT INTO contact_messages
			(id, name, email, phone, subject, message, ip_address, user_agent, status, admin_notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
		msg.ID, msg.Name, msg.Email, msg.Phone, msg.Subject, msg.Message,
		msg.IPAddress, msg.UserAgent, msg.Status, msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert contact message: %w", err)
	}
	return nil
}
