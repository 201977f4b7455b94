package cdb

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkernel/internal/alloc"
	"github.com/felixgeelhaar/modkernel/internal/apidb"
)

func TestAspects(t *testing.T) {
	reg := apidb.New(nil)
	db, ti := newStore(t)
	obj := mustCreate(t, db, ti)

	aspect := &PropertiesAspect{
		UIProperties: func(_ alloc.Allocator, db *DB, obj ObjID, args PropertiesArgs) error {
			name, err := db.GetStr(obj, propName)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(args.Out, "asset %s", name)
			return err
		},
	}
	require.NoError(t, RegisterAspect(reg, "inspector", PropertiesAspectName, ti, aspect, true))

	got := Aspect[PropertiesAspect](reg, PropertiesAspectName, ti)
	require.NotNil(t, got)

	var out bytes.Buffer
	require.NoError(t, got.UIProperties(alloc.Heap{}, db, obj, PropertiesArgs{Out: &out}))
	assert.Equal(t, "asset untitled", out.String())

	assert.Nil(t, Aspect[TreeAspect](reg, PropertiesAspectName, ti), "wrong record type")
	assert.Nil(t, Aspect[PropertiesAspect](reg, PropertiesAspectName, ti+1), "other type")

	require.NoError(t, RegisterAspect(reg, "inspector", PropertiesAspectName, ti, aspect, false))
	assert.Nil(t, Aspect[PropertiesAspect](reg, PropertiesAspectName, ti))
}
