package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// MIMEMsgpack is the content type of msgpack responses.
const MIMEMsgpack = "application/msgpack"

func wantsMsgpack(c echo.Context) bool {
	accept := c.Request().Header.Get(echo.HeaderAccept)
	return strings.Contains(accept, MIMEMsgpack) || strings.Contains(accept, "application/x-msgpack")
}

// respond writes v as msgpack when the client asks for it and as JSON otherwise.
func respond(c echo.Context, status int, v interface{}) error {
	if !wantsMsgpack(c) {
		return c.JSON(status, v)
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	c.Response().Header().Set(echo.HeaderVary, echo.HeaderAccept)
	return c.Blob(status, MIMEMsgpack, data)
}

func statusOK(c echo.Context, v interface{}) error {
	return respond(c, http.StatusOK, v)
}
