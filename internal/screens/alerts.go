package screens

import (
	"image"
	"image/color"
)

var (
	alertRed    = color.RGBA{R: 255, A: 255}
	alertYellow = color.RGBA{R: 255, G: 255, A: 255}
)

// NoWifiFrame is shown while the device is not associated to any network.
func NoWifiFrame(w, h int) *image.RGBA {
	img := NewFrame(w, h)
	DrawTextCentered(img, "No Wi-Fi.", 0, alertRed)
	return img
}

// NoInternetFrame is shown when the link is up but reachability probes
// fail; the SSID line tells the operator which network is misbehaving.
func NoInternetFrame(w, h int, ssid string) *image.RGBA {
	img := NewFrame(w, h)
	DrawTextCentered(img, "Wi-Fi ok.", -14, alertYellow)
	if ssid != "" {
		DrawTextCentered(img, ssid, 0, alertYellow)
	}
	DrawTextCentered(img, "No internet.", 14, alertRed)
	return img
}
