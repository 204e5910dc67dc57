package mailbody

import (
	"bytes"
	"html/template"
	textTemplate "text/template"
)

// Brand carries the product identity shown in every message.
type Brand struct {
	Product string // e.g. "SkyGuide"
	Program string // e.g. "SkyGuide Alpha Program"
	SiteURL string
	LogoURL string
	Year    int
}

type layoutData struct {
	Subject string
	Body    template.HTML
	Brand   Brand
}

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 0; background-color: #f0f2f5; color: #333333; }
        .email-container { max-width: 600px; margin: 20px auto; background-color: #ffffff; border-radius: 8px; overflow: hidden; border-top: 5px solid #007bff; }
        .header { text-align: center; padding: 30px 20px 20px 20px; }
        .header img { max-width: 180px; height: auto; margin-bottom: 10px; }
        .content-title { font-size: 22px; color: #003366; margin: 0 0 20px 0; font-weight: bold; text-align: center; }
        .content { padding: 10px 30px 30px 30px; line-height: 1.6; font-size: 16px; }
        .footer { text-align: center; padding: 20px 30px; background-color: #EAEAEA; font-size: 12px; color: #555555; line-height: 1.5; }
        .footer a { color: #007bff; text-decoration: none; font-weight: bold; }
    </style>
</head>
<body>
    <div class="email-container">
        <div class="header">
            {{if .Brand.LogoURL}}<a href="{{.Brand.SiteURL}}" target="_blank"><img src="{{.Brand.LogoURL}}" alt="{{.Brand.Product}} Logo" style="border:0;"></a>{{end}}
            <h1 class="content-title">{{.Subject}}</h1>
        </div>
        <div class="content">
            {{.Body}}
            <p style="margin-top: 30px;">Best regards,<br>The {{.Brand.Product}} Team</p>
        </div>
        <div class="footer">
            <p>&copy; {{.Brand.Year}} {{.Brand.Product}}. All rights reserved.</p>
            <p>{{.Brand.Program}}</p>
            {{if .Brand.SiteURL}}<p><a href="{{.Brand.SiteURL}}" target="_blank">Visit {{.Brand.SiteURL}}</a></p>{{end}}
        </div>
    </div>
</body>
</html>`))

// Welcome is the data for the signup confirmation message.
type Welcome struct {
	FirstName    string
	Organization string
	Role         string
	FromAddress  string
	Brand        Brand
}

var welcomeHTML = template.Must(template.New("welcome").Parse(`<p style="margin: 0 0 15px 0;">Hi {{.FirstName}},</p>
<p style="margin: 0 0 15px 0;">Thank you for signing up for the {{.Brand.Program}}! We're thrilled to have you on board.</p>
<p style="margin-top: 20px; margin-bottom: 10px; font-weight: bold;">Your submitted details:</p>
<ul style="list-style-type: none; padding-left: 0; margin-bottom: 20px;">
{{- if .Organization}}
<li style="margin-bottom: 5px;"><strong>Organization:</strong> {{.Organization}}</li>
{{- end}}
{{- if .Role}}
<li style="margin-bottom: 5px;"><strong>Role:</strong> {{.Role}}</li>
{{- end}}
</ul>
<p style="margin: 0 0 15px 0;">You're all set for now. We'll be in touch soon with more details and instructions on how to get started.</p>
<p style="margin: 0 0 15px 0;">In the meantime, please add <code>{{.FromAddress}}</code> to your contacts or safe sender list so our messages reach you.</p>`))

var welcomeText = textTemplate.Must(textTemplate.New("welcome_text").Parse(`Hi {{.FirstName}},

Welcome to the {{.Brand.Program}}!

Thank you for signing up. You're all set for now. We'll be in touch soon with more details and instructions on how to get started.

In the meantime, please add {{.FromAddress}} to your contacts or safe sender list so our messages reach you.

Best regards,
The {{.Brand.Product}} Team

© {{.Brand.Year}} {{.Brand.Product}}. All rights reserved.
If you did not sign up for this list, please disregard this email.`))

// RenderWelcome renders the confirmation sent after a signup is accepted.
// PRE: w.FirstName is non-empty
// POST: returns a complete document and a hand-written plain-text part
func RenderWelcome(w Welcome) (Rendered, error) {
	subject := "Welcome to " + w.Brand.Program + "! You're In!"

	var frag bytes.Buffer
	if err := welcomeHTML.Execute(&frag, w); err != nil {
		return Rendered{}, err
	}
	doc, err := Wrap("Welcome to the "+w.Brand.Program+"!", frag.String(), w.Brand)
	if err != nil {
		return Rendered{}, err
	}

	var text bytes.Buffer
	if err := welcomeText.Execute(&text, w); err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: subject, HTML: doc, Text: text.String()}, nil
}
