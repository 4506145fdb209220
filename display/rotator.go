package display

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"nowplaying-proxy-go/logcolors"
	"nowplaying-proxy-go/utils"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultRotation = 30 * time.Second

	// numbered images used when the directory is empty or unreadable
	emptyListFallbackCount  = 10
	failedListFallbackCount = 5

	imagesURLPrefix = "/images/"
)

// StandbyImages maps an images-list result to the URLs the standby view
// cycles through.
func StandbyImages(files []string, listErr error) []string {
	if listErr != nil {
		return numberedImages(failedListFallbackCount)
	}
	if len(files) == 0 {
		return numberedImages(emptyListFallbackCount)
	}
	images := make([]string, len(files))
	for i, f := range files {
		images[i] = imagesURLPrefix + f
	}
	return images
}

func numberedImages(n int) []string {
	images := make([]string, n)
	for i := range images {
		images[i] = fmt.Sprintf("%s%d.jpg", imagesURLPrefix, i+1)
	}
	return images
}

// Rotator cycles through standby images on a fixed interval.
type Rotator struct {
	mu       sync.Mutex
	interval time.Duration
	images   []string
	offset   int
	start    time.Time
	now      func() time.Time
}

func NewRotator(interval time.Duration) *Rotator {
	if interval <= 0 {
		interval = DefaultRotation
	}
	r := &Rotator{interval: interval, now: time.Now}
	r.start = r.now()
	return r
}

// Load reads the image list from dir, creating the directory if needed.
func (r *Rotator) Load(dir string) int {
	created, err := utils.EnsureDir(dir)
	if err != nil {
		log.Warnf("%s Cannot create images directory %s: %v", logcolors.LogStandby, dir, err)
	} else if created {
		log.Infof("%s Created images directory at: %s", logcolors.LogStandby, dir)
	}

	files, err := utils.ListImages(dir, utils.ListableImageExtensions)
	if err != nil {
		log.Errorf("%s Error loading images: %v", logcolors.LogStandby, err)
	}

	images := StandbyImages(files, err)
	r.SetImages(images)
	log.Infof("%s Loaded %d standby images", logcolors.LogStandby, len(images))
	return len(images)
}

// SetImages replaces the list and restarts the rotation. An unchanged list
// keeps the current position.
func (r *Rotator) SetImages(images []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.images != nil && slices.Equal(r.images, images) {
		return
	}
	r.images = append([]string(nil), images...)
	r.offset = 0
	r.start = r.now()
}

// Images returns a copy of the current list.
func (r *Rotator) Images() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.images...)
}

// Current returns the image to show now and its index, or "" and -1 when
// the list is empty.
func (r *Rotator) Current() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked()
	if idx < 0 {
		return "", -1
	}
	return r.images[idx], idx
}

// Skip moves past an image that failed to load. It does nothing when there
// is no other image to show.
func (r *Rotator) Skip() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.images) > 1 {
		r.offset++
	}
}

// Interval returns the rotation interval.
func (r *Rotator) Interval() time.Duration {
	return r.interval
}

func (r *Rotator) indexLocked() int {
	n := len(r.images)
	if n == 0 {
		return -1
	}
	steps := int(r.now().Sub(r.start) / r.interval)
	return (r.offset + steps) % n
}
