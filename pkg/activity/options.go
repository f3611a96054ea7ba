package activity

// ContainerOption configures a container activity.
// Options a container has no use for are ignored.
type ContainerOption func(*containerOptions)

type containerOptions struct {
	isolate         bool
	continueOnError bool
	loop            bool
	maxIterations   int
	fixed           bool
	times           int
	prompt          string
	resultsKey      string
	indexKey        string
	itemKey         string
	collectKey      string
	fallback        Factory
}

const defaultMaxIterations = 50

func applyOptions(opts []ContainerOption) containerOptions {
	o := containerOptions{maxIterations: defaultMaxIterations}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// IsolateContext runs children on a child context that is merged back only
// when the container completes.
func IsolateContext() ContainerOption {
	return func(o *containerOptions) { o.isolate = true }
}

// ContinueOnError records a failing Parallel branch as Cancelled instead of aborting the group.
func ContinueOnError() ContainerOption {
	return func(o *containerOptions) { o.continueOnError = true }
}

// Loop makes a Switch re-evaluate its selector after each case completes.
func Loop() ContainerOption {
	return func(o *containerOptions) { o.loop = true }
}

// MaxIterations bounds Repeat and looping Switch containers.
func MaxIterations(n int) ContainerOption {
	return func(o *containerOptions) { o.maxIterations = n }
}

// Times runs a Repeat a fixed number of times without prompting.
func Times(n int) ContainerOption {
	return func(o *containerOptions) {
		o.fixed = true
		o.times = n
	}
}

// ContinuePrompt sets the question a Repeat asks between iterations.
func ContinuePrompt(text string) ContainerOption {
	return func(o *containerOptions) { o.prompt = text }
}

// ResultsKey is where Parallel stores per-branch results.
func ResultsKey(key string) ContainerOption {
	return func(o *containerOptions) { o.resultsKey = key }
}

// IndexKey is where Repeat and ForEach expose the current iteration.
func IndexKey(key string) ContainerOption {
	return func(o *containerOptions) { o.indexKey = key }
}

// ItemKey is where ForEach exposes the current element.
func ItemKey(key string) ContainerOption {
	return func(o *containerOptions) { o.itemKey = key }
}

// CollectKey is where Repeat and ForEach collect child models.
func CollectKey(key string) ContainerOption {
	return func(o *containerOptions) { o.collectKey = key }
}

// Default sets the fallback branch of a Conditional or Switch.
func Default(f Factory) ContainerOption {
	return func(o *containerOptions) { o.fallback = f }
}

func orKey(key, fallback string) string {
	if key == "" {
		return fallback
	}
	return key
}
