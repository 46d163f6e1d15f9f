package action

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/bnema/radialmx/internal/profile"
)

// DBusCaller calls methods on the session bus.
type DBusCaller struct {
	Conn *dbus.Conn
}

func (c *DBusCaller) Call(ctx context.Context, ep profile.Endpoint, args []any) error {
	obj := c.Conn.Object(ep.Service, dbus.ObjectPath(ep.Path))
	return obj.CallWithContext(ctx, ep.Member(), 0, args...).Err
}
