// Package output delivers a serialized report to its destination: stdout, a
// local file, an S3 object or an Azure blob.
package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Kind identifies a destination type.
type Kind int

const (
	KindStdout Kind = iota
	KindFile
	KindS3
	KindAzure
)

func (k Kind) String() string {
	switch k {
	case KindStdout:
		return "stdout"
	case KindFile:
		return "file"
	case KindS3:
		return "s3"
	case KindAzure:
		return "azblob"
	default:
		return "unknown"
	}
}

const (
	schemeS3    = "s3://"
	schemeAzure = "azblob://"
)

// ErrInvalidDestination is returned for malformed remote destinations.
var ErrInvalidDestination = errors.New("invalid output destination")

// Destination is a parsed --output value.
type Destination struct {
	Kind Kind
	Raw  string

	// Path is the local file path (KindFile).
	Path string

	// Bucket/Container and Key/Blob name the remote object.
	Container string
	Key       string
}

// Parse classifies dest. An empty string or "-" means stdout; s3:// and
// azblob:// URLs need both a container and an object key.
func Parse(dest string) (Destination, error) {
	d := Destination{Raw: dest}
	switch {
	case dest == "" || dest == "-":
		d.Kind = KindStdout
	case strings.HasPrefix(dest, schemeS3):
		d.Kind = KindS3
		return splitRemote(d, strings.TrimPrefix(dest, schemeS3))
	case strings.HasPrefix(dest, schemeAzure):
		d.Kind = KindAzure
		return splitRemote(d, strings.TrimPrefix(dest, schemeAzure))
	default:
		d.Kind = KindFile
		d.Path = dest
	}
	return d, nil
}

func splitRemote(d Destination, rest string) (Destination, error) {
	container, key, ok := strings.Cut(rest, "/")
	if !ok || container == "" || strings.Trim(key, "/") == "" {
		return d, fmt.Errorf("%w: %s (expected %s<container>/<key>)", ErrInvalidDestination, d.Raw, d.Kind.String()+"://")
	}
	d.Container = container
	d.Key = key
	return d, nil
}

// Remote reports whether the destination is a cloud object.
func (d Destination) Remote() bool {
	return d.Kind == KindS3 || d.Kind == KindAzure
}

// Writer writes report bytes to destinations. Remote clients are created on
// first use unless set beforehand.
type Writer struct {
	Stdout io.Writer
	S3     S3Config
	Azure  AzureConfig

	s3Client    S3PutObjectAPI
	azureClient AzureUploadAPI
}

// NewWriter returns a Writer that prints stdout destinations to stdout.
func NewWriter(stdout io.Writer) *Writer {
	if stdout == nil {
		stdout = os.Stdout
	}
	return &Writer{Stdout: stdout}
}

// WithS3Client injects the S3 client.
func (w *Writer) WithS3Client(c S3PutObjectAPI) *Writer {
	w.s3Client = c
	return w
}

// WithAzureClient injects the Azure blob client.
func (w *Writer) WithAzureClient(c AzureUploadAPI) *Writer {
	w.azureClient = c
	return w
}

// Write delivers data to dest. contentType is used for remote objects.
func (w *Writer) Write(ctx context.Context, dest Destination, data []byte, contentType string) error {
	switch dest.Kind {
	case KindStdout:
		if _, err := w.Stdout.Write(data); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		return nil
	case KindFile:
		if err := os.WriteFile(dest.Path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dest.Path, err)
		}
		return nil
	case KindS3:
		return w.putS3(ctx, dest, data, contentType)
	case KindAzure:
		return w.putAzure(ctx, dest, data, contentType)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidDestination, dest.Raw)
	}
}

// WriteTo is Parse followed by Write.
func (w *Writer) WriteTo(ctx context.Context, dest string, data []byte, contentType string) (Destination, error) {
	d, err := Parse(dest)
	if err != nil {
		return d, err
	}
	return d, w.Write(ctx, d, data, contentType)
}
