package license

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"

	"onboarding-gateway/internal/steps"
)

// MaxDocumentBytes is the upload ceiling.
const MaxDocumentBytes = 10 << 20

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Validate checks size and type before anything leaves the process. The
// declared content type must be an image and must agree with the sniffed one.
// It returns the detected content type.
func Validate(doc Document) (string, error) {
	if len(doc.Data) == 0 {
		return "", steps.NewError(steps.KindValidation, "el archivo está vacío")
	}
	if len(doc.Data) > MaxDocumentBytes {
		return "", steps.NewError(steps.KindValidation,
			fmt.Sprintf("el archivo supera el máximo de %d MB", MaxDocumentBytes>>20))
	}
	detected := http.DetectContentType(doc.Data)
	if _, ok := allowedTypes[detected]; !ok {
		return "", steps.NewError(steps.KindValidation, "solo se aceptan imágenes JPG, PNG o WEBP")
	}
	declared := strings.ToLower(strings.TrimSpace(strings.SplitN(doc.ContentType, ";", 2)[0]))
	if declared != "" && declared != "application/octet-stream" && declared != detected {
		return "", steps.NewError(steps.KindValidation, "el tipo de archivo no coincide con su contenido")
	}
	return detected, nil
}

// Digest fingerprints document bytes for the duplicate-rejection guard.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func extensionFor(contentType string) string {
	return allowedTypes[contentType]
}
