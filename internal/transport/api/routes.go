package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface is implemented by the HTTP transport.
type ServerInterface interface {
	// CreateBatch handles POST /api/v1/batches.
	CreateBatch(w http.ResponseWriter, r *http.Request)
	// UploadBatch handles POST /api/v1/upload.
	UploadBatch(w http.ResponseWriter, r *http.Request)
	// GetBatch handles GET /api/v1/batches/{batch}.
	GetBatch(w http.ResponseWriter, r *http.Request, batch BatchID)
	// DeleteBatch handles DELETE /api/v1/batches/{batch}.
	DeleteBatch(w http.ResponseWriter, r *http.Request, batch BatchID)
	// ClusterBatch handles POST /api/v1/batches/{batch}/cluster.
	ClusterBatch(w http.ResponseWriter, r *http.Request, batch BatchID)
	// ListClusters handles GET /api/v1/batches/{batch}/clusters.
	ListClusters(w http.ResponseWriter, r *http.Request, batch BatchID)
	// FilterMentions handles GET /api/v1/batches/{batch}/filter.
	FilterMentions(w http.ResponseWriter, r *http.Request, batch BatchID, params FilterMentionsParams)
	// GetFile handles GET /api/v1/batches/{batch}/files/{filename}.
	GetFile(w http.ResponseWriter, r *http.Request, batch BatchID, filename Filename)
	// PutFile handles PUT /api/v1/batches/{batch}/files/{filename}.
	PutFile(w http.ResponseWriter, r *http.Request, batch BatchID, filename Filename)
	// HealthCheck handles GET /health.
	HealthCheck(w http.ResponseWriter, r *http.Request)
	// Metrics handles GET /metrics.
	Metrics(w http.ResponseWriter, r *http.Request)
}

// MiddlewareFunc wraps a single route handler.
type MiddlewareFunc func(http.Handler) http.Handler

// InvalidParamFormatError reports a parameter that failed to bind.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

// RequiredParamError reports a missing required query parameter.
type RequiredParamError struct {
	ParamName string
}

func (e *RequiredParamError) Error() string {
	return fmt.Sprintf("query parameter %s is required, but not found", e.ParamName)
}

// ServerInterfaceWrapper binds parameters and dispatches to the ServerInterface.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	var handler http.Handler = fn
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	handler.ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) pathParam(w http.ResponseWriter, r *http.Request, name string, dest *string) bool {
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
		return false
	}
	return true
}

func (siw *ServerInterfaceWrapper) queryParam(w http.ResponseWriter, r *http.Request, name string, dest *string) bool {
	query := r.URL.Query()
	if _, found := query[name]; !found {
		siw.ErrorHandlerFunc(w, r, &RequiredParamError{ParamName: name})
		return false
	}
	if err := runtime.BindQueryParameter("form", true, true, name, query, dest); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
		return false
	}
	return true
}

// CreateBatch operation middleware.
func (siw *ServerInterfaceWrapper) CreateBatch(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.CreateBatch)
}

// UploadBatch operation middleware.
func (siw *ServerInterfaceWrapper) UploadBatch(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.UploadBatch)
}

// GetBatch operation middleware.
func (siw *ServerInterfaceWrapper) GetBatch(w http.ResponseWriter, r *http.Request) {
	var batch BatchID
	if !siw.pathParam(w, r, "batch", &batch) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetBatch(w, r, batch)
	})
}

// DeleteBatch operation middleware.
func (siw *ServerInterfaceWrapper) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	var batch BatchID
	if !siw.pathParam(w, r, "batch", &batch) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.DeleteBatch(w, r, batch)
	})
}

// ClusterBatch operation middleware.
func (siw *ServerInterfaceWrapper) ClusterBatch(w http.ResponseWriter, r *http.Request) {
	var batch BatchID
	if !siw.pathParam(w, r, "batch", &batch) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ClusterBatch(w, r, batch)
	})
}

// ListClusters operation middleware.
func (siw *ServerInterfaceWrapper) ListClusters(w http.ResponseWriter, r *http.Request) {
	var batch BatchID
	if !siw.pathParam(w, r, "batch", &batch) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ListClusters(w, r, batch)
	})
}

// FilterMentions operation middleware.
func (siw *ServerInterfaceWrapper) FilterMentions(w http.ResponseWriter, r *http.Request) {
	var batch BatchID
	if !siw.pathParam(w, r, "batch", &batch) {
		return
	}
	var params FilterMentionsParams
	if !siw.queryParam(w, r, "field", &params.Field) || !siw.queryParam(w, r, "value", &params.Value) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.FilterMentions(w, r, batch, params)
	})
}

// GetFile operation middleware.
func (siw *ServerInterfaceWrapper) GetFile(w http.ResponseWriter, r *http.Request) {
	var batch BatchID
	var filename Filename
	if !siw.pathParam(w, r, "batch", &batch) || !siw.pathParam(w, r, "filename", &filename) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetFile(w, r, batch, filename)
	})
}

// PutFile operation middleware.
func (siw *ServerInterfaceWrapper) PutFile(w http.ResponseWriter, r *http.Request) {
	var batch BatchID
	var filename Filename
	if !siw.pathParam(w, r, "batch", &batch) || !siw.pathParam(w, r, "filename", &filename) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.PutFile(w, r, batch, filename)
	})
}

// HealthCheck operation middleware.
func (siw *ServerInterfaceWrapper) HealthCheck(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.HealthCheck)
}

// Metrics operation middleware.
func (siw *ServerInterfaceWrapper) Metrics(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.Metrics)
}

// ChiServerOptions configures HandlerWithOptions.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// Handler creates an http.Handler with routing matching the API.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

// HandlerWithOptions mounts every route of si on the base router.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	base := options.BaseURL
	r.Group(func(r chi.Router) {
		r.Post(base+"/api/v1/batches", wrapper.CreateBatch)
		r.Post(base+"/api/v1/upload", wrapper.UploadBatch)
		r.Get(base+"/api/v1/batches/{batch}", wrapper.GetBatch)
		r.Delete(base+"/api/v1/batches/{batch}", wrapper.DeleteBatch)
		r.Post(base+"/api/v1/batches/{batch}/cluster", wrapper.ClusterBatch)
		r.Get(base+"/api/v1/batches/{batch}/clusters", wrapper.ListClusters)
		r.Get(base+"/api/v1/batches/{batch}/filter", wrapper.FilterMentions)
		r.Get(base+"/api/v1/batches/{batch}/files/{filename}", wrapper.GetFile)
		r.Put(base+"/api/v1/batches/{batch}/files/{filename}", wrapper.PutFile)
		r.Get(base+"/health", wrapper.HealthCheck)
		r.Get(base+"/metrics", wrapper.Metrics)
	})
	return r
}
