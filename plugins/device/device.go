// Package device implements the built-in "device" plugin. Its methods read
// fields from the DeviceInfo plugin's systeminfo result.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/zero-day-ai/thunder/plugin"
	"github.com/zero-day-ai/thunder/promise"
)

// Name is the name the plugin is registered under.
const Name = "device"

// Callsign is the device plugin the methods query.
const Callsign = "DeviceInfo"

// New returns the device plugin handler. Each method sends
// DeviceInfo.systeminfo through req, passing the first call argument as
// params.
func New(req plugin.Requester) plugin.Methods {
	d := &device{req: req}
	return plugin.Methods{
		"freeRam": d.freeRam,
		"version": d.version,
	}
}

type device struct {
	req plugin.Requester
}

// freeRam resolves with the free memory in bytes, or nil when the device
// does not report it.
func (d *device) freeRam(ctx context.Context, args ...any) (any, error) {
	return d.systemInfo(ctx, args).Then(func(v any) (any, error) {
		res, err := field(v, "freeram")
		if err != nil || !res.Exists() {
			return nil, err
		}
		return res.Uint(), nil
	}), nil
}

// version resolves with the firmware version without its build suffix.
// "2.0.1#7a3e" becomes "2.0.1".
func (d *device) version(ctx context.Context, args ...any) (any, error) {
	return d.systemInfo(ctx, args).Then(func(v any) (any, error) {
		res, err := field(v, "version")
		if err != nil {
			return nil, err
		}
		version, _, _ := strings.Cut(res.String(), "#")
		return version, nil
	}), nil
}

func (d *device) systemInfo(ctx context.Context, args []any) *promise.Promise {
	var params any
	if len(args) > 0 {
		params = args[0]
	}
	return d.req.Request(ctx, Callsign, "systeminfo", params)
}

func field(v any, path string) (gjson.Result, error) {
	var raw []byte
	switch t := v.(type) {
	case nil:
		return gjson.Result{}, nil
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("encode systeminfo result: %w", err)
		}
		raw = data
	}

	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("systeminfo result is not valid JSON")
	}
	return gjson.GetBytes(raw, path), nil
}
