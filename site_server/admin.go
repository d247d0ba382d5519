package main

import (
	"fmt"
	"log"
	"os"
	"schoolsite/db"
	"strconv"
	"strings"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const adminTokenLifetime = 24 * time.Hour

// Statuses an administrator may set. "unread" and "spam" are assigned at
// creation time; everything after that is an administrative action.
var adminSettableStatuses = map[string]bool{
	statusRead:     true,
	statusReplied:  true,
	statusSpam:     true,
	statusArchived: true,
}

func HandleAdminLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"success": false, "message": "Username and password are required"})
		return
	}

	username := os.Getenv("ADMIN_USERNAME")
	passwordHash := os.Getenv("ADMIN_PASSWORD_HASH")
	if username == "" || passwordHash == "" {
		log.Println("Admin login attempted but admin credentials are not configured")
		c.JSON(401, gin.H{"success": false, "message": "Invalid credentials"})
		return
	}

	if req.Username != username ||
		bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)) != nil {
		c.JSON(401, gin.H{"success": false, "message": "Invalid credentials"})
		return
	}

	token, err := generateAdminJWT(req.Username, adminTokenLifetime)
	if err != nil {
		log.Println("Admin token error:", err)
		c.JSON(500, gin.H{"success": false, "message": "Something went wrong on the server"})
		return
	}

	c.JSON(200, gin.H{"success": true, "token": token})
}

func generateAdminJWT(username string, expirationTime time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"username": username,
		"role":     "admin",
		"exp":      time.Now().Add(expirationTime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("JWT_SECRET")))
}

func AdminJwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		jwtSecret := os.Getenv("JWT_SECRET")

		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			c.JSON(401, gin.H{"success": false, "message": "Authorization header required"})
			c.Abort()
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			c.JSON(401, gin.H{"success": false, "message": "Invalid or expired token"})
			c.Abort()
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			c.Set("adminUsername", claims["username"])
		}

		c.Next()
	}
}

// HandleListMessages returns stored submissions newest first, optionally
// filtered by status.
func HandleListMessages(c *gin.Context) {
	status := strings.TrimSpace(c.Query("status"))
	limit := getQueryInt(c, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := getQueryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, name, email, phone, subject, message, ip_address, user_agent, status, admin_notes, created_at, updated_at
		FROM contact_messages`
	args := []interface{}{}
	if status != "" && status != "all" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.SiteDB.QueryContext(c.Request.Context(), query, args...)
	if err != nil {
		log.Println("Message list query error:", err)
		c.JSON(500, gin.H{"success": false, "message": "Database query failed"})
		return
	}
	defer rows.Close()

	messages := make([]ContactMessage, 0)
	for rows.Next() {
		var m ContactMessage
		if err := rows.Scan(
			&m.ID, &m.Name, &m.Email, &m.Phone, &m.Subject, &m.Message,
			&m.IPAddress, &m.UserAgent, &m.Status, &m.AdminNotes,
			&m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			log.Println("Error scanning message row:", err)
			continue
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		log.Println("Message list row error:", err)
		c.JSON(500, gin.H{"success": false, "message": "Database query failed"})
		return
	}

	c.JSON(200, gin.H{"success": true, "messages": messages})
}

// HandleUpdateMessageStatus sets a submission's status and optional admin
// notes. Status only ever changes through this administrative route.
func HandleUpdateMessageStatus(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		Status     string `json:"status" binding:"required"`
		AdminNotes string `json:"admin_notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"success": false, "message": "Status is required"})
		return
	}
	if !adminSettableStatuses[req.Status] {
		c.JSON(400, gin.H{"success": false, "message": "Status must be one of: read, replied, spam, archived"})
		return
	}
	if len(req.AdminNotes) > 1000 {
		c.JSON(400, gin.H{"success": false, "message": "Admin notes cannot be more than 1000 characters"})
		return
	}

	result, err := db.SiteDB.ExecContext(c.Request.Context(),
		`UPDATE contact_messages SET status = ?, admin_notes = ?, updated_at = ? WHERE id = ?`,
		req.Status, req.AdminNotes, time.Now().UTC(), id,
	)
	if err != nil {
		log.Println("Message status update error:", err)
		c.JSON(500, gin.H{"success": false, "message": "Database update failed"})
		return
	}
	affected, err := result.RowsAffected()
	if err != nil {
		log.Println("Message status update error:", err)
		c.JSON(500, gin.H{"success": false, "message": "Database update failed"})
		return
	}
	if affected == 0 {
		c.JSON(404, gin.H{"success": false, "message": "Message not found"})
		return
	}

	c.JSON(200, gin.H{"success": true})
}

func getQueryInt(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
