package prompts

import (
	"strings"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
)

const (
	importPandas  = "import pandas as pd"
	importNumpy   = "import numpy as np"
	importScipy   = "import scipy"
	importSklearn = "import sklearn"

	importMatplotlib = "import matplotlib\nmatplotlib.use('Agg')\nimport matplotlib.pyplot as plt\nimport seaborn as sns"
)

// dataFrameLoad reads the working dataset and coerces object columns that
// parse as datetimes, so temporal analysis works without explicit casts.
const dataFrameLoad = `df = pd.read_csv('dataset.csv')
for column in df.columns:
	if pd.api.types.is_object_dtype(df[column]):
		try:
			df[column] = pd.to_datetime(df[column])
		except Exception as _:
			pass`

// AnalyticalBootstrap returns the sandbox initialization code per analysis
// type. Each variant imports only the libraries that type is allowed to use
// and ends with the dataframe load.
func AnalyticalBootstrap() map[model.AnalysisType]string {
	base := []string{importPandas, importNumpy}

	join := func(extra ...string) string {
		lines := append(append([]string{}, base...), extra...)
		lines = append(lines, dataFrameLoad)
		return strings.Join(lines, "\n")
	}

	return map[model.AnalysisType]string{
		model.AnalysisDescriptive: join(),
		model.AnalysisDiagnostic:  join(importScipy),
		model.AnalysisPredictive:  join(importScipy),
		model.AnalysisInferential: join(importSklearn),
	}
}

// InfographicBootstrap returns the sandbox initialization code for plot
// rendering. The Agg backend keeps matplotlib headless inside the container.
func InfographicBootstrap() string {
	return strings.Join([]string{importPandas, importNumpy, importMatplotlib, dataFrameLoad}, "\n")
}
