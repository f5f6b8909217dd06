package export

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/berealx/internal/domain"
	"github.com/John-Robertt/berealx/internal/window"
	"github.com/m-mizutani/gt"
)

func TestLoad_Memories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "memories.json"), `[
		{"frontImage":{"path":"/Photos/post/f1.webp"},"backImage":{"path":"/Photos/post/b1.webp"},
		 "takenTime":"2024-06-01T12:00:00.000Z","location":{"latitude":40.7,"longitude":-74.0},
		 "isLate":false,"caption":"ignored"},
		{"frontImage":{"path":"f2.webp"},"backImage":{"path":"b2.webp"},"takenTime":"bad","location":{"latitude":1}}
	]`)

	recs, err := Load(root, domain.KindMemory)
	gt.NoError(t, err).Required()
	gt.A(t, recs).Length(2)

	r := recs[0]
	gt.Equal(t, r.Kind, domain.KindMemory)
	gt.Equal(t, r.Index, 0)
	gt.Equal(t, r.TakenAtRaw, "2024-06-01T12:00:00.000Z")
	front, ok := r.Image(domain.RoleFront)
	gt.True(t, ok)
	gt.Equal(t, front.Path, "/Photos/post/f1.webp")
	gt.V(t, r.Location).NotNil()
	gt.Equal(t, *r.Location, domain.Coords{Lat: 40.7, Lon: -74.0})

	// 只有纬度：视为无坐标。
	gt.True(t, recs[1].Location == nil)
	gt.Equal(t, recs[1].Index, 1)
}

func TestLoad_Reactions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "realmojis.json"), `[
		{"media":{"path":"/Photos/realmoji/r1.jpg"},"postedAt":"2024-01-02T03:04:05Z","isInstant":true},
		{"media":{"path":"r2.jpg"},"postedAt":"2024-01-02T03:04:06Z"}
	]`)

	recs, err := Load(root, domain.KindReaction)
	gt.NoError(t, err).Required()
	gt.A(t, recs).Length(2)

	media, ok := recs[0].Image(domain.RoleMedia)
	gt.True(t, ok)
	gt.Equal(t, media.Path, "/Photos/realmoji/r1.jpg")
	gt.V(t, recs[0].Instant).NotNil()
	gt.True(t, *recs[0].Instant)
	gt.True(t, recs[1].Instant == nil)
	gt.True(t, recs[1].Location == nil)
}

func TestLoad_MistypedRecordOnlyAffectsItself(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "memories.json"), `[
		{"frontImage":{"path":"f1.webp"},"backImage":{"path":"b1.webp"},"takenTime":"2024-06-01T12:00:00Z"},
		{"frontImage":{"path":"f2.webp"},"backImage":{"path":"b2.webp"},"takenTime":1717243200},
		{"frontImage":{"path":"f3.webp"},"backImage":{"path":"b3.webp"},"takenTime":"2024-06-02T12:00:00Z",
		 "location":{"latitude":"40.7","longitude":-74.0}},
		{"frontImage":"f4.webp","backImage":{"path":"b4.webp"},"takenTime":"2024-06-03T12:00:00Z"},
		42
	]`)

	recs, err := Load(root, domain.KindMemory)
	gt.NoError(t, err).Required()
	gt.A(t, recs).Length(5)

	gt.Equal(t, recs[1].TakenAtRaw, "1717243200")
	gt.True(t, recs[2].Location == nil)
	gt.Equal(t, recs[2].TakenAtRaw, "2024-06-02T12:00:00Z")
	front, _ := recs[3].Image(domain.RoleFront)
	gt.Equal(t, front.Path, "")
	gt.Equal(t, recs[4].TakenAtRaw, "")

	kept, rejected := Select(recs, window.AllTime(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)), domain.InstantAll)
	gt.A(t, kept).Length(3)
	gt.A(t, rejected).Length(2)
	for _, r := range rejected {
		gt.Equal(t, r.Code, domain.ErrCodeBadTimestamp)
	}
}

func TestLoad_MistypedReactionFields(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "realmojis.json"), `[
		{"media":{"path":"r1.jpg"},"postedAt":"2024-01-02T03:04:05Z","isInstant":"yes"},
		{"media":{"path":"r2.jpg"},"postedAt":null,"isInstant":false}
	]`)

	recs, err := Load(root, domain.KindReaction)
	gt.NoError(t, err).Required()
	gt.A(t, recs).Length(2)
	gt.True(t, recs[0].Instant == nil)
	gt.Equal(t, recs[1].TakenAtRaw, "")
	gt.V(t, recs[1].Instant).NotNil()
	gt.False(t, *recs[1].Instant)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(t.TempDir(), domain.KindMemory)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, ErrMissingInput))
}

func TestLoad_Malformed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "realmojis.json"), `{"not":"an array"}`)

	_, err := Load(root, domain.KindReaction)
	gt.True(t, errors.Is(err, ErrMissingInput))
}

func TestInputFile(t *testing.T) {
	gt.Equal(t, InputFile(domain.KindMemory), "memories.json")
	gt.Equal(t, InputFile(domain.KindReaction), "realmojis.json")
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	gt.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755)).Required()
	gt.NoError(t, os.WriteFile(p, []byte(content), 0o644)).Required()
}
