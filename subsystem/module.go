package subsystem

// Module is a set of stage functions contributed by one source.
// Every field is optional; which fields are required depends on the role the module is loaded for.
type Module struct {
	// Name is the logical name the module was registered or discovered under.
	Name string

	// File is the origin of the module, used as the first part of stage Meta.
	File string

	Config         ConfigFunc
	Context        ContextFunc
	RequestContext RequestContextFunc
	Handler        HandlerFunc
	Adaptor        AdaptorFunc
	Error          ErrorFunc
	HealthCheck    HealthCheckFunc
}

// IsEmpty reports whether the module exports no stage at all.
func (m Module) IsEmpty() bool {
	return m.Config == nil &&
		m.Context == nil &&
		m.RequestContext == nil &&
		m.Handler == nil &&
		m.Adaptor == nil &&
		m.Error == nil &&
		m.HealthCheck == nil
}

// Route is one discovered route before it is compiled into a call pipeline.
type Route struct {
	Name      string
	Dir       string
	File      string
	Handle    HandleFunc
	Resolvers []ResolverFunc

	// Extras holds additional declarations a route file made, for custom handler resolution.
	Extras Values
}

// Handler is the resolved form of a route the pipeline executes.
type Handler struct {
	// Name overrides the route name when set.
	Name      string
	Handle    HandleFunc
	Resolvers []ResolverFunc
}

// Application is the assembled set of ordered stages. It is not modified after assembly.
type Application struct {
	Config         []Invocable[*State, Values]
	Context        []Invocable[*State, Values]
	RequestContext []Invocable[*CallContext, Values]
	Handler        Invocable[Resolution, Handler]
	Error          []Invocable[Failure, *Output]
	HealthCheck    []Invocable[*State, Done]
	Adaptor        []Invocable[Attachment, Done]
}
