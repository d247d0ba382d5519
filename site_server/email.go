package main

import (
	"fmt"
	"log"
	"net/smtp"
	"os"
)

func SendEmail(recipient string, subject string, body string) error {
	smtpHost := envOrDefault("SMTP_HOST", "smtp.gmail.com")
	smtpPort := envOrDefault("SMTP_PORT", "587")
	authEmail := os.Getenv("EMAIL")
	authPassword := os.Getenv("EMAIL_PASSWORD")
	fromEmail := envOrDefault("EMAIL_FROM", authEmail)

	if authEmail == "" || authPassword == "" {
		return fmt.Errorf("EMAIL or EMAIL_PASSWORD not configured")
	}

	auth := smtp.PlainAuth("", authEmail, authPassword, smtpHost)
	to := []string{recipient}

	msg := []byte(
		"From: " + fromEmail + "\r\n" +
			"To: " + recipient + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"Content-Type: text/plain; charset=\"UTF-8\"\r\n" +
			"\r\n" +
			body + "\r\n")

	err := smtp.SendMail(smtpHost+":"+smtpPort, auth, authEmail, to, msg)
	if err != nil {
		return err
	}

	log.Printf("Email sent to %s (%s)", recipient, subject)
	return nil
}

// sendContactNotification emails the administrator about a new submission.
// Best effort: failures are logged and swallowed so a broken mail setup
// never fails the user-visible submission. Skipped outside production.
func sendContactNotification(msg *ContactMessage) {
	adminEmail := envOrDefault("ADMIN_EMAIL", "admin@stnicholasorthodoxschool.org")

	if !isProduction() {
		log.Println("Email notification skipped (dev mode). Would send to:", adminEmail)
		return
	}

	phone := msg.Phone
	if phone == "" {
		phone = "Not provided"
	}
	body := fmt.Sprintf(
		"New contact form submission\r\n"+
			"\r\n"+
			"Name: %s\r\n"+
			"Email: %s\r\n"+
			"Phone: %s\r\n"+
			"Subject: %s\r\n"+
			"\r\n"+
			"Message:\r\n%s\r\n"+
			"\r\n"+
			"Received at: %s\r\n",
		msg.Name, msg.Email, phone, msg.Subject, msg.Message,
		msg.CreatedAt.Format("2006-01-02 15:04:05 MST"),
	)

	if err := SendEmail(adminEmail, "New Contact Form: "+msg.Subject, body); err != nil {
		log.Println("Email notification error:", err)
	}
}
