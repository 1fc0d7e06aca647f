package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wb-go/wbf/ginext"

	"github.com/buzzzzx/shanbor/internal/config"
)

func TestNew(t *testing.T) {
	r := ginext.New()
	cfg := &config.Server{
		HTTPPort:     ":8081",
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  time.Minute,
	}

	s := New(cfg, r)

	assert.Equal(t, ":8081", s.Addr)
	assert.Equal(t, 2*time.Second, s.ReadTimeout)
	assert.Equal(t, 2*time.Second, s.ReadHeaderTimeout)
	assert.Equal(t, 45*time.Second, s.WriteTimeout)
	assert.Equal(t, time.Minute, s.IdleTimeout)
	assert.NotNil(t, s.Handler)
}
