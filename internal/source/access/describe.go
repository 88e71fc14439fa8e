// Package access registers the ODBC driver used for Access sources and the
// column describer the Access catalog relies on. The database/sql driver
// does not expose column types, so columns are described on private ODBC
// handles with SQLPrepare and SQLDescribeCol.
package access

import (
	"context"
	"unsafe"

	"github.com/alexbrainman/odbc"
	"github.com/alexbrainman/odbc/api"
	"github.com/johndauphine/accdb-pg-migrate/internal/dbconfig"
	"github.com/johndauphine/accdb-pg-migrate/internal/logging"
	"github.com/johndauphine/accdb-pg-migrate/internal/source"
)

func init() {
	source.RegisterDescriber(dbconfig.SourceAccess, Describe)
}

// Describe connects to dsn, prepares query and returns the driver's
// description of every result column. The statement is never executed.
// Each call uses its own environment and connection, which are released
// before it returns.
func Describe(ctx context.Context, dsn, query string) ([]source.NativeColumn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	env, err := allocEnv()
	if err != nil {
		return nil, err
	}
	defer free(env)

	dbc, err := connect(env, dsn)
	if err != nil {
		return nil, err
	}
	defer func() {
		api.SQLDisconnect(dbc)
		free(dbc)
	}()

	stmt, err := prepare(dbc, query)
	if err != nil {
		return nil, err
	}
	defer free(stmt)

	var n api.SQLSMALLINT
	if ret := api.SQLNumResultCols(stmt, &n); odbc.IsError(ret) {
		return nil, odbc.NewError("SQLNumResultCols", stmt)
	}
	cols := make([]source.NativeColumn, 0, n)
	for i := 0; i < int(n); i++ {
		col, err := describeColumn(stmt, i)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func allocEnv() (api.SQLHENV, error) {
	var out api.SQLHANDLE
	in := api.SQLHANDLE(api.SQL_NULL_HANDLE)
	if ret := api.SQLAllocHandle(api.SQL_HANDLE_ENV, in, &out); odbc.IsError(ret) {
		return api.SQLHENV(in), odbc.NewError("SQLAllocHandle", api.SQLHENV(in))
	}
	env := api.SQLHENV(out)
	if ret := api.SQLSetEnvUIntPtrAttr(env, api.SQL_ATTR_ODBC_VERSION, api.SQL_OV_ODBC3, 0); odbc.IsError(ret) {
		err := odbc.NewError("SQLSetEnvUIntPtrAttr", env)
		free(env)
		return env, err
	}
	return env, nil
}

func connect(env api.SQLHENV, dsn string) (api.SQLHDBC, error) {
	var out api.SQLHANDLE
	if ret := api.SQLAllocHandle(api.SQL_HANDLE_DBC, api.SQLHANDLE(env), &out); odbc.IsError(ret) {
		return api.SQLHDBC(out), odbc.NewError("SQLAllocHandle", env)
	}
	dbc := api.SQLHDBC(out)

	b := api.StringToUTF16(dsn)
	ret := api.SQLDriverConnect(dbc, 0,
		(*api.SQLWCHAR)(unsafe.Pointer(&b[0])), api.SQL_NTS,
		nil, 0, nil, api.SQL_DRIVER_NOPROMPT)
	if odbc.IsError(ret) {
		err := odbc.NewError("SQLDriverConnect", dbc)
		free(dbc)
		return dbc, err
	}
	return dbc, nil
}

func prepare(dbc api.SQLHDBC, query string) (api.SQLHSTMT, error) {
	var out api.SQLHANDLE
	if ret := api.SQLAllocHandle(api.SQL_HANDLE_STMT, api.SQLHANDLE(dbc), &out); odbc.IsError(ret) {
		return api.SQLHSTMT(out), odbc.NewError("SQLAllocHandle", dbc)
	}
	stmt := api.SQLHSTMT(out)

	b := api.StringToUTF16(query)
	if ret := api.SQLPrepare(stmt, (*api.SQLWCHAR)(unsafe.Pointer(&b[0])), api.SQL_NTS); odbc.IsError(ret) {
		err := odbc.NewError("SQLPrepare", stmt)
		free(stmt)
		return stmt, err
	}
	return stmt, nil
}

func describeColumn(stmt api.SQLHSTMT, idx int) (source.NativeColumn, error) {
	namebuf := make([]uint16, 150)
	for {
		var namelen, sqltype, decimal, nullable api.SQLSMALLINT
		var size api.SQLULEN
		ret := api.SQLDescribeCol(stmt, api.SQLUSMALLINT(idx+1),
			(*api.SQLWCHAR)(unsafe.Pointer(&namebuf[0])),
			api.SQLSMALLINT(len(namebuf)), &namelen,
			&sqltype, &size, &decimal, &nullable)
		if odbc.IsError(ret) {
			return source.NativeColumn{}, odbc.NewError("SQLDescribeCol", stmt)
		}
		// The name was truncated; retry with room for the terminator.
		if int(namelen) >= len(namebuf) {
			namebuf = make([]uint16, int(namelen)+1)
			continue
		}
		return source.NativeColumn{
			Name:    api.UTF16ToString(namebuf[:int(namelen)]),
			SQLType: int(sqltype),
			Size:    int64(size),
		}, nil
	}
}

// free releases an environment, connection or statement handle. A failure
// is logged and otherwise ignored.
func free(handle any) {
	h, ht, err := odbc.ToHandleAndType(handle)
	if err != nil {
		logging.Debug("Releasing ODBC handle: %v", err)
		return
	}
	if ret := api.SQLFreeHandle(ht, h); odbc.IsError(ret) {
		logging.Debug("SQLFreeHandle(%d) returned %d", ht, ret)
	}
}
