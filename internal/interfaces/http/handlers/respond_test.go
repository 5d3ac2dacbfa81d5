package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domainErrors.NewInvalidInputError("bad"), http.StatusBadRequest},
		{domainErrors.NewUnauthorizedError("who"), http.StatusUnauthorized},
		{domainErrors.NewNotFoundError("gone"), http.StatusNotFound},
		{domainErrors.NewConfigurationError("off"), http.StatusConflict},
		{domainErrors.NewServiceUnavailableError("down", errors.New("dial")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}
