package gcstorage

import (
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"

	pacscodec "gitlab.com/medical-research/pacs-codec"
)

// GeneratePresignedInstanceURL signs a time-limited URL for an instance's
// raw object so viewers can pull pixel bytes without routing them through
// this service.
func (c *Client) GeneratePresignedInstanceURL(sopInstanceUID, method string) (string, error) {
	return c.generatePresignedURL(instancePrefix+sopInstanceUID+".dcm", method)
}

func (c *Client) generatePresignedURL(object, method string) (string, error) {
	serviceAccount := pacscodec.MustGetEnvVar(ServiceAccount)
	jsonKey, err := os.ReadFile(serviceAccount)
	if err != nil {
		return "", fmt.Errorf("os.ReadFile: %v", err)
	}
	conf, err := google.JWTConfigFromJSON(jsonKey)
	if err != nil {
		return "", fmt.Errorf("google.JWTConfigFromJSON: %v", err)
	}
	opts := &storage.SignedURLOptions{
		Scheme: storage.SigningSchemeV4,
		Method: method,
		Headers: []string{
			"Content-Type:application/octet-stream",
		},
		GoogleAccessID: conf.Email,
		PrivateKey:     conf.PrivateKey,
		Expires:        time.Now().Add(15 * time.Minute),
	}
	u, err := c.SignedURL(c.Bucket, object, opts)
	if err != nil {
		return "", fmt.Errorf("storage.SignedURL: %v", err)
	}
	return u, nil
}
