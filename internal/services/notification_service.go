// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/sevenfour-backend/internal/config"
	"github.com/javajoker/sevenfour-backend/internal/models"
)

// NotificationService sends customer emails over SMTP. Without SMTP settings
// messages are only logged.
type NotificationService struct {
	email    config.EmailConfig
	frontend config.FrontendConfig
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(cfg *config.Config) *NotificationService {
	return &NotificationService{
		email:    cfg.Email,
		frontend: cfg.Frontend,
		send:     smtp.SendMail,
	}
}

type orderEmailData struct {
	CustomerName string
	OrderNumber  string
	Total        string
	Items        []models.OrderItem
	OrderURL     string
	StoreName    string
	Reason       string
	DeliveryDate string
	Tracking     string
}

func (s *NotificationService) orderData(order *models.Order, customerName string) orderEmailData {
	return orderEmailData{
		CustomerName: customerName,
		OrderNumber:  order.OrderNumber,
		Total:        order.TotalAmount.StringFixed(2),
		Items:        order.Items,
		OrderURL:     fmt.Sprintf("%s/orders/%d", s.frontend.BaseURL, order.ID),
		StoreName:    s.email.FromName,
	}
}

func (s *NotificationService) SendOrderPlaced(user *models.User, order *models.Order) error {
	return s.sendTemplate(user.Email, "order_placed", s.orderData(order, user.DisplayName()))
}

func (s *NotificationService) SendOrderConfirmed(user *models.User, order *models.Order) error {
	return s.sendTemplate(user.Email, "order_confirmed", s.orderData(order, user.DisplayName()))
}

func (s *NotificationService) SendOrderCancelled(user *models.User, order *models.Order, reason string) error {
	data := s.orderData(order, user.DisplayName())
	data.Reason = reason
	return s.sendTemplate(user.Email, "order_cancelled", data)
}

func (s *NotificationService) SendDeliveryScheduled(user *models.User, order *models.Order, schedule *models.DeliverySchedule) error {
	data := s.orderData(order, user.DisplayName())
	data.DeliveryDate = schedule.DeliveryDate
	data.Tracking = schedule.TrackingNumber
	return s.sendTemplate(user.Email, "delivery_scheduled", data)
}

// Dispatch runs a send in the background and logs failures.
func (s *NotificationService) Dispatch(kind string, send func() error) {
	go func() {
		if err := send(); err != nil {
			logrus.WithError(err).WithField("notification", kind).Warn("Failed to send notification")
		}
	}()
}

func (s *NotificationService) sendTemplate(to, templateType string, data orderEmailData) error {
	tmpl := s.getEmailTemplate(templateType)
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	subject, err := s.renderTemplate(tmpl.Subject, data)
	if err != nil {
		return fmt.Errorf("failed to render email subject: %w", err)
	}
	return s.sendEmail(to, subject, body)
}

func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.email.SMTPHost == "" {
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("Email not configured, skipping send")
		return nil
	}

	auth := smtp.PlainAuth("", s.email.SMTPUsername, s.email.SMTPPassword, s.email.SMTPHost)
	msg := []byte(fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		s.email.FromName, s.email.FromEmail, to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.email.SMTPHost, s.email.SMTPPort)
	return s.send(addr, auth, s.email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

const itemsTable = `
	<table>
	{{range .Items}}<tr><td>{{.ProductName}} ({{.Size}}/{{.Color}})</td><td>x{{.Quantity}}</td><td>&#8369;{{.Subtotal.StringFixed 2}}</td></tr>
	{{end}}</table>
	<p><strong>Total: &#8369;{{.Total}}</strong></p>`

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"order_placed": {
			Subject: "Order {{.OrderNumber}} received",
			Body: `<!DOCTYPE html><html><body>
	<h2>Thank you, {{.CustomerName}}!</h2>
	<p>We received your order <strong>{{.OrderNumber}}</strong>. We will confirm it shortly.</p>` + itemsTable + `
	<a href="{{.OrderURL}}">View your order</a>
	<p>{{.StoreName}}</p>
</body></html>`,
		},
		"order_confirmed": {
			Subject: "Order {{.OrderNumber}} confirmed",
			Body: `<!DOCTYPE html><html><body>
	<h2>Your order is confirmed</h2>
	<p>Hello {{.CustomerName}}, order <strong>{{.OrderNumber}}</strong> has been confirmed and your items are reserved.</p>` + itemsTable + `
	<p>{{.StoreName}}</p>
</body></html>`,
		},
		"order_cancelled": {
			Subject: "Order {{.OrderNumber}} cancelled",
			Body: `<!DOCTYPE html><html><body>
	<h2>Your order was cancelled</h2>
	<p>Hello {{.CustomerName}}, order <strong>{{.OrderNumber}}</strong> has been cancelled.</p>
	{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
	<p>{{.StoreName}}</p>
</body></html>`,
		},
		"delivery_scheduled": {
			Subject: "Delivery scheduled for order {{.OrderNumber}}",
			Body: `<!DOCTYPE html><html><body>
	<h2>Your delivery is scheduled</h2>
	<p>Hello {{.CustomerName}}, order <strong>{{.OrderNumber}}</strong> will be delivered on {{.DeliveryDate}}.</p>
	<p>Tracking number: {{.Tracking}}</p>
	<p>{{.StoreName}}</p>
</body></html>`,
		},
	}

	if tmpl, exists := templates[templateType]; exists {
		return tmpl
	}

	return EmailTemplate{
		Subject: "Order {{.OrderNumber}}",
		Body:    "<p>{{.OrderNumber}}</p>",
	}
}
