package schedule

import (
	"strconv"
	"strings"

	"github.com/Nixie-Tech-LLC/herald/internal/model"
)

// fileKey identifies a file for playback purposes. The same content shown
// for two different durations is two files.
type fileKey struct {
	contentID int
	duration  int
}

// fileIndex memoizes the position of each file in the package file list.
// It lives for a single compilation.
type fileIndex struct {
	baseURL string
	pos     map[fileKey]int
	files   []model.File
}

func newFileIndex(baseURL string) *fileIndex {
	return &fileIndex{
		baseURL: baseURL,
		pos:     make(map[fileKey]int),
		files:   []model.File{},
	}
}

// ref returns the file list index for c played for duration seconds, adding
// the file on first sight.
func (x *fileIndex) ref(c model.Content, duration int, data *model.FileData) int {
	key := fileKey{contentID: c.ID, duration: duration}
	if i, ok := x.pos[key]; ok {
		return i
	}
	i := len(x.files)
	x.files = append(x.files, model.File{
		ID:   "ContentFile-" + strconv.Itoa(c.ID),
		Size: c.Size,
		MD5:  strings.ToLower(c.MD5),
		URL:  x.baseURL + c.URL,
		Data: data,
	})
	x.pos[key] = i
	return i
}
