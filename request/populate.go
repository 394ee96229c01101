package request

import (
	"io"
	"net/http"
	"reflect"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/sevenitynet/reliefboard/errors"
	"github.com/sevenitynet/reliefboard/model"
	"github.com/sevenitynet/reliefboard/session"
)

var (
	snapshotType = reflect.TypeOf(session.Snapshot{})
	storeType    = reflect.TypeOf(&session.Store{})
	profileType  = reflect.TypeOf(&model.Profile{})
)

// PopulateRequest creates a new request struct of reqType and fills it from the Gin context.
//
// Supported field tags:
//   - session:"required" or session:"optional" on a session.Snapshot, *session.Store or
//     *model.Profile field. "required" fails with 401 when the client has no token.
//   - gin:"true" on a *gin.Context field.
//   - path, query and header take the parameter name; query and header are required unless
//     optional:"true". Query fields may be string, bool or int.
//   - body:"true" decodes the JSON body into the field.
func PopulateRequest(c *gin.Context, reqType reflect.Type) any {
	reqValue := reflect.New(reqType).Elem()

	for i := 0; i < reqType.NumField(); i++ {
		field := reqType.Field(i)
		fieldValue := reqValue.Field(i)

		if !fieldValue.CanSet() {
			continue
		}

		if field.Anonymous {
			embeddedReq := PopulateRequest(c, field.Type)
			fieldValue.Set(reflect.ValueOf(embeddedReq).Elem())
			continue
		}

		if sessionTag := field.Tag.Get("session"); sessionTag != "" {
			populateSession(c, field, fieldValue, sessionTag != "optional")
			continue
		}

		if ginTag := field.Tag.Get("gin"); ginTag != "" {
			if fieldValue.Kind() != reflect.Ptr {
				panic("field with 'gin' tag must be a pointer to a gin.Context")
			}
			fieldValue.Set(reflect.ValueOf(c))
			continue
		}

		if pathParam := field.Tag.Get("path"); pathParam != "" {
			fieldValue.SetString(c.Param(pathParam))
		} else if queryParam := field.Tag.Get("query"); queryParam != "" {
			queryValue := c.Query(queryParam)
			if queryValue == "" {
				if field.Tag.Get("optional") != "true" {
					panic(errors.FailedRequest{
						Status:  http.StatusBadRequest,
						Message: "Missing required query parameter: " + queryParam,
					})
				}
				continue
			}
			setQuery(fieldValue, queryParam, queryValue)
		} else if headerParam := field.Tag.Get("header"); headerParam != "" {
			headerValue := c.GetHeader(headerParam)
			if headerValue == "" && field.Tag.Get("optional") != "true" {
				panic(errors.FailedRequest{
					Status:  http.StatusBadRequest,
					Message: "Missing required header: " + headerParam,
				})
			}
			fieldValue.SetString(headerValue)
		} else if bodyParam := field.Tag.Get("body"); bodyParam != "" {
			populateBody(c, field, fieldValue)
		}
	}

	return reqValue.Addr().Interface()
}

func populateSession(c *gin.Context, field reflect.StructField, fieldValue reflect.Value, required bool) {
	store := StoreFrom(c)
	snap := SnapshotFrom(c)

	if required && !snap.Authenticated() {
		panic(errors.FailedRequest{
			Status:  http.StatusUnauthorized,
			Message: "Unauthorized: session is required but not provided",
		})
	}

	switch field.Type {
	case snapshotType:
		fieldValue.Set(reflect.ValueOf(snap))
	case storeType:
		if store != nil {
			fieldValue.Set(reflect.ValueOf(store))
		}
	case profileType:
		if snap.Profile != nil {
			fieldValue.Set(reflect.ValueOf(snap.Profile))
		}
	default:
		panic("field with 'session' tag must be a session.Snapshot, *session.Store or *model.Profile")
	}
}

func setQuery(fieldValue reflect.Value, name, value string) {
	switch fieldValue.Kind() {
	case reflect.String:
		fieldValue.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			panic(errors.FailedRequest{
				Status:  http.StatusBadRequest,
				Message: "Invalid boolean query parameter: " + name,
			})
		}
		fieldValue.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			panic(errors.FailedRequest{
				Status:  http.StatusBadRequest,
				Message: "Invalid integer query parameter: " + name,
			})
		}
		fieldValue.SetInt(n)
	default:
		panic("field with 'query' tag must be a string, bool or int")
	}
}

func populateBody(c *gin.Context, field reflect.StructField, fieldValue reflect.Value) {
	target := field.Type
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}

	bodyInstance := reflect.New(target)
	if err := bindJsonFast(c, bodyInstance.Interface()); err != nil {
		message := "Invalid JSON body"
		if gin.IsDebugging() {
			message += ": " + err.Error()
		}

		panic(errors.FailedRequest{
			Status:  http.StatusBadRequest,
			Message: message,
		})
	}

	if field.Type.Kind() == reflect.Ptr {
		fieldValue.Set(bodyInstance)
	} else {
		fieldValue.Set(bodyInstance.Elem())
	}
}

func bindJsonFast(c *gin.Context, v any) error {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}
