package analyzer

import (
	"fmt"
	"strings"
)

// defaultRubric is the dimension list used when no custom rubric is supplied
const defaultRubric = `1. **Subject actions**: walking, driving, entering, exiting, speaking, gesturing, and so on.
2. **Main subject**: the dominant object or person in frame, including close-up targets.
3. **Subject state**: accelerating, braking, turning, idle, steady motion, passing by.
4. **Camera angle**: overhead, low angle, eye level, bird's eye, tracking shot.
5. **Location**: city street, highway, countryside, coast, interior, studio.
6. **Time of day**: early morning, morning, midday, afternoon, dusk, night.
7. **Branding**: any visible brand, model or product name.`

// BuildPrompt assembles the instruction text for one segment's analysis
// request. The previous segment's analysis text is embedded so descriptions
// stay coherent across time; it is empty for the first segment and after a
// failed segment.
func BuildPrompt(title, prevAnalysis, rubric string) string {
	if strings.TrimSpace(rubric) == "" {
		rubric = defaultRubric
	}

	var b strings.Builder
	b.WriteString("### Video segment analysis\n")
	b.WriteString("The goal is to break the segment down from multiple angles so an editor can find usable material. ")
	b.WriteString(fmt.Sprintf("The source video title %q is an overview of the whole video; ignore it if it carries no meaning.\n", title))
	b.WriteString(fmt.Sprintf("**To keep the output coherent across segments, the previous segment's analysis is: '%s'. ", prevAnalysis))
	b.WriteString("If no previous analysis is provided, this is the first segment.**\n")
	b.WriteString("**Analyze the segment along the following dimensions:**\n")
	b.WriteString(rubric)
	b.WriteString("\nOutput one paragraph of scene description covering the dimensions above, followed by a table. ")
	b.WriteString("If a dimension does not apply, output \"none\" for it. ")
	b.WriteString("A segment contains exactly one shot; never describe multiple shots.\n")
	return b.String()
}
