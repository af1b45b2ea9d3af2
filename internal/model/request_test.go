package model_test

import (
	"encoding/json"
	"testing"

	"github.com/maptoposter/posterd/internal/model"
	"github.com/stretchr/testify/require"
)

func TestResolveDefaults(t *testing.T) {
	got := model.PosterRequest{}.Resolve()
	require.Equal(t, model.GenerationRequest{
		Location:     "London,UK",
		Country:      "",
		Style:        "minimal",
		Zoom:         11,
		Width:        1200,
		Height:       800,
		OutputFormat: "png",
	}, got)
	require.Equal(t, got, model.DefaultRequest())
}

func TestResolvePartial(t *testing.T) {
	var in model.PosterRequest
	require.NoError(t, json.Unmarshal([]byte(`{"location":"Paris, France","zoom":0,"height":600}`), &in))

	got := in.Resolve()
	require.Equal(t, "Paris, France", got.Location)
	require.Equal(t, "minimal", got.Style)
	require.Equal(t, 0, got.Zoom, "explicit zero is kept")
	require.Equal(t, 1200, got.Width)
	require.Equal(t, 600, got.Height)
	require.Equal(t, "png", got.OutputFormat)
	require.Equal(t, "0", got.ZoomArg())
	require.Equal(t, "1200", got.WidthArg())
	require.Equal(t, "600", got.HeightArg())
}

func TestResolveDoesNotAlias(t *testing.T) {
	loc := "Berlin"
	in := model.PosterRequest{Location: &loc}
	got := in.Resolve()
	loc = "Rome"
	require.Equal(t, "Berlin", got.Location)
	require.Equal(t, "Rome", *in.Location)
	require.Equal(t, 3, *model.Ptr(3))
}
