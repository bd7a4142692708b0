// Photo normalizer: scans the photo bucket for uploads that have no
// pass-photo variant yet, crops them to pass geometry and stamps the Upload
// row. With -watch it stays running and picks up new files via fsnotify.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"regportal/models"
)

// Pass-photo geometry: 35x45mm at screen resolution.
const (
	passPhotoW = 132
	passPhotoH = 170
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

var db *gorm.DB

var verbose bool

func mustInitDBFromEnv() *gorm.DB {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatalf("DB_DSN must be set in environment to run this tool")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return gdb
}

func uploadBase() string {
	if v := os.Getenv("UPLOAD_BASE"); v != "" {
		return v
	}
	return "uploads"
}

func main() {
	watch := flag.Bool("watch", false, "keep watching the photo directory for new uploads")
	flag.BoolVar(&verbose, "v", false, "verbose logging")
	flag.Parse()

	db = mustInitDBFromEnv()
	dir := filepath.Join(uploadBase(), "photos")

	n := scanPending()
	log.Printf("normalized %d pending photo(s)", n)

	if *watch {
		watchDir(dir)
	}
}

// scanPending processes every upload row that has neither a normalized
// variant nor a recorded failure.
func scanPending() int {
	var pending []models.Upload
	if err := db.Where("normalized = false AND failed_reason = ''").Find(&pending).Error; err != nil {
		log.Fatalf("query pending uploads: %v", err)
	}
	done := 0
	for i := range pending {
		if normalizeOne(&pending[i]) {
			done++
		}
	}
	return done
}

// normalizeOne crops a stored photo to pass geometry and records the result.
// Failures are stamped on the row instead of deleting it so an admin can
// review the original.
func normalizeOne(up *models.Upload) bool {
	src := filepath.Join(uploadBase(), up.StorePath)
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		markFailed(up, "open: "+err.Error())
		return false
	}
	fitted := imaging.Fill(img, passPhotoW, passPhotoH, imaging.Center, imaging.Lanczos)

	base := strings.TrimSuffix(filepath.Base(up.StorePath), filepath.Ext(up.StorePath))
	outRel := "photos/" + base + "_pass.jpg"
	outFull := filepath.Join(uploadBase(), outRel)
	if err := imaging.Save(fitted, outFull, imaging.JPEGQuality(90)); err != nil {
		markFailed(up, "save: "+err.Error())
		return false
	}
	if err := db.Model(up).Updates(map[string]any{
		"normalized":      true,
		"normalized_path": outRel,
		"failed_reason":   "",
	}).Error; err != nil {
		log.Printf("update upload %d: %v", up.ID, err)
		return false
	}
	if verbose {
		log.Printf("normalized %s -> %s", up.StorePath, outRel)
	}
	return true
}

func markFailed(up *models.Upload, reason string) {
	if len(reason) > 255 {
		reason = reason[:255]
	}
	if err := db.Model(up).Update("failed_reason", reason).Error; err != nil {
		log.Printf("mark upload %d failed: %v", up.ID, err)
	}
	log.Printf("upload %d (%s) failed: %s", up.ID, up.StorePath, reason)
}

// watchDir blocks, normalizing uploads as their files appear.
func watchDir(dir string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Fatalf("fsnotify: %v", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		log.Fatalf("watch %s: %v", dir, err)
	}
	log.Printf("watching %s", dir)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			ext := strings.ToLower(filepath.Ext(ev.Name))
			if !imageExts[ext] || strings.HasSuffix(ev.Name, "_pass.jpg") {
				continue
			}
			// give the HTTP handler a moment to finish writing the file
			time.Sleep(500 * time.Millisecond)
			rel := "photos/" + filepath.Base(ev.Name)
			var up models.Upload
			if err := db.Where("store_path = ? AND normalized = false", rel).First(&up).Error; err != nil {
				continue // row not created yet; the next scan catches it
			}
			normalizeOne(&up)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error: %v", err)
		}
	}
}
