// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/homevue/staging-engine/internal/domain"
)

const (
	testW = 200
	testH = 150
)

func encodePNG(t *testing.T, img *image.RGBA) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func emptyRoom(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, testW, testH))
	fillRect(img, 0, 0, testW, testH, color.RGBA{120, 120, 120, 255})
	return encodePNG(t, img)
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.Set(x, y, c)
		}
	}
}

// furnishedRoom adds three furniture-sized rectangles in the mid-frame zone,
// clear of the wall, window, and floor bands.
func furnishedRoom(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, testW, testH))
	fillRect(img, 0, 0, testW, testH, color.RGBA{120, 120, 120, 255})
	furniture := color.RGBA{80, 80, 80, 255}
	fillRect(img, 40, 72, 70, 92, furniture)
	fillRect(img, 85, 75, 115, 95, furniture)
	fillRect(img, 130, 80, 160, 100, furniture)
	return encodePNG(t, img)
}

func stageOf(kind domain.StageKind, minItems, maxItems int) domain.StageConfig {
	return domain.StageConfig{Kind: kind, MinItems: minItems, MaxItems: maxItems}
}

func TestValidatePrimaryFurniturePasses(t *testing.T) {
	v := NewHeuristicValidator(nil)

	verdict, err := v.Validate(context.Background(), emptyRoom(t), furnishedRoom(t),
		stageOf(domain.StagePrimaryFurniture, 1, 10))
	if err != nil {
		t.Fatal(err)
	}
	if !verdict.Passed {
		t.Fatalf("expected pass, got violations %v", verdict.Violations)
	}
	if verdict.ItemCountEstimate < 1 {
		t.Fatalf("expected positive item estimate, got %d", verdict.ItemCountEstimate)
	}
}

func TestValidateWallDecorSignal(t *testing.T) {
	v := NewHeuristicValidator(nil)

	after := image.NewRGBA(image.Rect(0, 0, testW, testH))
	fillRect(after, 0, 0, testW, testH, color.RGBA{120, 120, 120, 255})
	fillRect(after, 60, 30, 120, 50, color.RGBA{60, 60, 60, 255}) // framed art on the wall

	// Wall decor appearing during a primary-furniture stage is a violation.
	verdict, err := v.Validate(context.Background(), emptyRoom(t), encodePNG(t, after),
		stageOf(domain.StagePrimaryFurniture, 1, 10))
	if err != nil {
		t.Fatal(err)
	}
	if verdict.Passed {
		t.Fatal("expected wall decor violation")
	}
	if !hasViolation(verdict, domain.ViolationWallDecorPresent) {
		t.Fatalf("expected %s, got %v", domain.ViolationWallDecorPresent, verdict.Violations)
	}

	// The same image is fine when the stage is itself the wall-decor stage.
	verdict, err = v.Validate(context.Background(), emptyRoom(t), encodePNG(t, after),
		stageOf(domain.StageWallDecor, 1, 10))
	if err != nil {
		t.Fatal(err)
	}
	if !verdict.Passed {
		t.Fatalf("wall decor stage should accept wall decor, got %v", verdict.Violations)
	}
}

func TestValidateWindowTreatmentSignal(t *testing.T) {
	v := NewHeuristicValidator(nil)

	after := image.NewRGBA(image.Rect(0, 0, testW, testH))
	fillRect(after, 0, 0, testW, testH, color.RGBA{120, 120, 120, 255})
	fillRect(after, 2, 10, 20, 80, color.RGBA{70, 70, 70, 255}) // curtain panel

	verdict, err := v.Validate(context.Background(), emptyRoom(t), encodePNG(t, after),
		stageOf(domain.StageWallDecor, 1, 10))
	if err != nil {
		t.Fatal(err)
	}
	if !hasViolation(verdict, domain.ViolationWindowTreatmentPresent) {
		t.Fatalf("expected %s, got %v", domain.ViolationWindowTreatmentPresent, verdict.Violations)
	}

	verdict, err = v.Validate(context.Background(), emptyRoom(t), encodePNG(t, after),
		stageOf(domain.StageWindowTreatment, 1, 10))
	if err != nil {
		t.Fatal(err)
	}
	if !verdict.Passed {
		t.Fatalf("window treatment stage should accept curtains, got %v", verdict.Violations)
	}
}

func TestValidateColorDrift(t *testing.T) {
	v := NewHeuristicValidator(nil)

	after := image.NewRGBA(image.Rect(0, 0, testW, testH))
	fillRect(after, 0, 0, testW, testH, color.RGBA{180, 120, 120, 255}) // repainted red

	verdict, err := v.Validate(context.Background(), emptyRoom(t), encodePNG(t, after),
		stageOf(domain.StageAccessory, 0, 5))
	if err != nil {
		t.Fatal(err)
	}
	if verdict.Passed {
		t.Fatal("expected color drift violation")
	}
	if !hasViolation(verdict, domain.ViolationColorDrift) {
		t.Fatalf("expected %s, got %v", domain.ViolationColorDrift, verdict.Violations)
	}
}

func TestValidateItemCountOutOfRange(t *testing.T) {
	v := NewHeuristicValidator(nil)

	// A zero-budget stage must not add anything.
	verdict, err := v.Validate(context.Background(), emptyRoom(t), furnishedRoom(t),
		stageOf(domain.StageAccessory, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !hasViolation(verdict, domain.ViolationItemCountOutOfRange) {
		t.Fatalf("expected %s, got %v", domain.ViolationItemCountOutOfRange, verdict.Violations)
	}

	// An unchanged image fails a stage that requires additions.
	verdict, err = v.Validate(context.Background(), emptyRoom(t), emptyRoom(t),
		stageOf(domain.StageAccessory, 2, 5))
	if err != nil {
		t.Fatal(err)
	}
	if !hasViolation(verdict, domain.ViolationItemCountOutOfRange) {
		t.Fatalf("expected %s, got %v", domain.ViolationItemCountOutOfRange, verdict.Violations)
	}
	if verdict.ItemCountEstimate != 0 {
		t.Fatalf("expected zero estimate for unchanged image, got %d", verdict.ItemCountEstimate)
	}
}

func TestValidateCirculationBlocked(t *testing.T) {
	v := NewHeuristicValidator(nil)

	after := image.NewRGBA(image.Rect(0, 0, testW, testH))
	fillRect(after, 0, 0, testW, testH, color.RGBA{120, 120, 120, 255})
	// Saturate the central floor band with clutter.
	for y := 112; y < testH; y++ {
		for x := 50; x < 150; x++ {
			c := color.RGBA{0, 0, 0, 255}
			if (x+y)%2 == 0 {
				c = color.RGBA{255, 255, 255, 255}
			}
			after.Set(x, y, c)
		}
	}

	verdict, err := v.Validate(context.Background(), emptyRoom(t), encodePNG(t, after),
		stageOf(domain.StagePrimaryFurniture, 1, 100))
	if err != nil {
		t.Fatal(err)
	}
	if !hasViolation(verdict, domain.ViolationCirculationBlocked) {
		t.Fatalf("expected %s, got %v", domain.ViolationCirculationBlocked, verdict.Violations)
	}
}

func TestValidateRejectsUndecodableImage(t *testing.T) {
	v := NewHeuristicValidator(nil)

	if _, err := v.Validate(context.Background(), []byte("not an image"), furnishedRoom(t),
		stageOf(domain.StagePrimaryFurniture, 1, 10)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestEdgeDensityFlatImageIsZero(t *testing.T) {
	f, err := decodeFrame(emptyRoom(t))
	if err != nil {
		t.Fatal(err)
	}
	if d := f.edgeDensity(wholeFrame); d != 0 {
		t.Fatalf("expected zero density for flat image, got %f", d)
	}
}

func hasViolation(v domain.ValidationVerdict, target domain.Violation) bool {
	for _, violation := range v.Violations {
		if violation == target {
			return true
		}
	}
	return false
}
