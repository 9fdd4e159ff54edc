package memo

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"memo-web/internal/domain"
	appErrors "memo-web/pkg/errors"

	"github.com/gabriel-vasile/mimetype"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// MaxImageSize is the largest accepted upload.
const MaxImageSize = 5 << 20

// preparedImage is an upload that passed validation.
type preparedImage struct {
	data        []byte
	contentType string
	ext         string
}

// prepareImage reads the file, enforces the size limit and checks that the
// content is an image.
func prepareImage(file *domain.ImageFile) (*preparedImage, error) {
	if file == nil || file.Body == nil {
		return nil, nil
	}
	if file.Size > MaxImageSize {
		return nil, appErrors.NewValidation("image", "Image must be 5 MB or smaller")
	}
	data, err := io.ReadAll(io.LimitReader(file.Body, MaxImageSize+1))
	if err != nil {
		return nil, appErrors.NewUnexpected(fmt.Errorf("read image: %w", err))
	}
	if len(data) > MaxImageSize {
		return nil, appErrors.NewValidation("image", "Image must be 5 MB or smaller")
	}
	if len(data) == 0 {
		return nil, appErrors.NewValidation("image", "Image file is empty")
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, appErrors.NewValidation("image", "Please choose an image file")
	}

	ext := strings.ToLower(filepath.Ext(file.Name))
	if ext == "" || ext == "." {
		ext = mtype.Extension()
	}
	ct, _, _ := strings.Cut(mtype.String(), ";")
	return &preparedImage{data: data, contentType: ct, ext: ext}, nil
}

func (p *preparedImage) body() io.Reader {
	return bytes.NewReader(p.data)
}

// newObjectPath names a new object under the owner's folder, keeping the
// uploaded file's extension.
func newObjectPath(ownerID, ext string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate object name: %w", err)
	}
	return ownerID + "/" + id + ext, nil
}

// pathFromURL recovers "<owner>/<file>" from a public object URL.
func pathFromURL(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	dir, file := path.Split(strings.TrimSuffix(p, "/"))
	owner := path.Base(strings.TrimSuffix(dir, "/"))
	if file == "" || owner == "" || owner == "." || owner == "/" {
		return ""
	}
	return owner + "/" + file
}
