package models

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImageInput(t *testing.T) {
	in := ImageInput{Data: []byte("\x89PNG\r\n\x1a\nrest"), Filename: "a.png"}
	require.EqualValues(t, 12, in.Size())

	data, err := io.ReadAll(in.Reader())
	require.NoError(t, err)
	require.Equal(t, in.Data, data)
	require.Equal(t, "data:image/png;base64,iVBORw0KGgpyZXN0", in.DataURL())

	in.ContentType = "image/webp"
	require.Contains(t, in.DataURL(), "data:image/webp;base64,")
}

func TestSourceURLsPrefersURLs(t *testing.T) {
	req := ImageEditRequest{
		ImageURLs: []string{"https://img.example/a.png"},
		Images:    []ImageInput{{Data: []byte("x"), ContentType: "image/png"}},
	}
	require.Equal(t, []string{"https://img.example/a.png"}, req.SourceURLs())

	req.ImageURLs = nil
	require.Equal(t, []string{"data:image/png;base64,eA=="}, req.SourceURLs())
}
