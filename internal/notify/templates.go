package notify

import (
	"fmt"
	"html"
	"strings"
)

const (
	subjectModelReady  = "Tu modelo está listo"
	subjectImagesReady = "Tus fotos están listas"
)

func modelURL(appBaseURL string, modelID uint) string {
	return fmt.Sprintf("%s/overview/models/%d", strings.TrimRight(appBaseURL, "/"), modelID)
}

func renderModelReady(appBaseURL, modelName string, modelID uint) string {
	return renderLayout(
		"¡Tu modelo está listo!",
		fmt.Sprintf("El entrenamiento de <strong>%s</strong> terminó correctamente. Ya puedes generar tus fotos profesionales.", html.EscapeString(modelName)),
		modelURL(appBaseURL, modelID),
		"Ver mi modelo",
	)
}

func renderImagesReady(appBaseURL, modelName string, modelID uint, count int) string {
	return renderLayout(
		"¡Tus fotos están listas!",
		fmt.Sprintf("Generamos %d fotos con tu modelo <strong>%s</strong>.", count, html.EscapeString(modelName)),
		modelURL(appBaseURL, modelID),
		"Ver mis fotos",
	)
}

func renderLayout(title, body, link, action string) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family:Arial,sans-serif;max-width:560px;margin:0 auto;padding:24px">`)
	fmt.Fprintf(&b, `<h1 style="font-size:22px">%s</h1>`, html.EscapeString(title))
	fmt.Fprintf(&b, `<p style="font-size:15px;line-height:1.5">%s</p>`, body)
	fmt.Fprintf(&b, `<p><a href="%s" style="display:inline-block;padding:10px 18px;background:#111;color:#fff;border-radius:6px;text-decoration:none">%s</a></p>`,
		html.EscapeString(link), html.EscapeString(action))
	b.WriteString(`<p style="font-size:12px;color:#888">RetratAI</p></div>`)
	return b.String()
}
