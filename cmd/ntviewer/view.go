package main

import (
	"context"
	"log/slog"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/slaclab/pydm-pva-widgets/modules/ntimage"
)

const viewerSubscriber = "ntviewer"

// imageView shows the widget's displayed bitmaps and forwards size changes
// and color-map selections back to it.
type imageView struct {
	widget.BaseWidget

	w   ntimage.Widget
	img *canvas.Image
}

func newImageView(w ntimage.Widget) *imageView {
	v := &imageView{w: w, img: &canvas.Image{}}
	v.img.FillMode = canvas.ImageFillContain
	v.img.ScaleMode = canvas.ImageScalePixels
	v.ExtendBaseWidget(v)
	return v
}

func (v *imageView) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(v.img)
}

// Resize reports the new area in device pixels.
func (v *imageView) Resize(size fyne.Size) {
	v.BaseWidget.Resize(size)

	scale := float32(1)
	if c := fyne.CurrentApp().Driver().CanvasForObject(v); c != nil {
		scale = c.Scale()
	}
	v.w.Resize(int(size.Width*scale), int(size.Height*scale))
}

// SecondaryTapped opens the context menu with the color map list.
func (v *imageView) SecondaryTapped(ev *fyne.PointEvent) {
	c := fyne.CurrentApp().Driver().CanvasForObject(v)
	if c == nil {
		return
	}
	widget.ShowPopUpMenuAtPosition(v.contextMenu(), c, ev.AbsolutePosition)
}

func (v *imageView) contextMenu() *fyne.Menu {
	active := v.w.ColorMap()

	var items []*fyne.MenuItem
	for _, name := range v.w.ColorMaps() {
		item := fyne.NewMenuItem(name, func() {
			if err := v.w.SetColorMap(name); err != nil {
				slog.Warn("color map not applied", "color_map", name, "error", err)
			}
		})
		item.Checked = name == active
		items = append(items, item)
	}

	colorMaps := fyne.NewMenuItem("Color Map", nil)
	colorMaps.ChildMenu = fyne.NewMenu("", items...)
	return fyne.NewMenu("", colorMaps)
}

// follow copies each new bitmap onto the canvas until ctx is done.
func (v *imageView) follow(ctx context.Context) {
	rx, err := v.w.Subscribe(viewerSubscriber)
	if err != nil {
		slog.Error("viewer subscription failed", "error", err)
		return
	}
	go func() {
		<-ctx.Done()
		_ = v.w.Unsubscribe(viewerSubscriber)
	}()

	for {
		b, ok := rx.Receive()
		if !ok {
			return
		}
		fyne.Do(func() {
			v.img.Image = b.Image
			v.img.Refresh()
		})
	}
}
