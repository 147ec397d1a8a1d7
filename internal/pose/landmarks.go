package pose

// JointID names a body landmark reported by the pose detector.
type JointID string

// MediaPipe pose landmark names, indexed by the landmark number the detector reports.
var landmarkNames = [...]JointID{
	"nose",
	"left_eye_inner",
	"left_eye",
	"left_eye_outer",
	"right_eye_inner",
	"right_eye",
	"right_eye_outer",
	"left_ear",
	"right_ear",
	"mouth_left",
	"mouth_right",
	"left_shoulder",
	"right_shoulder",
	"left_elbow",
	"right_elbow",
	"left_wrist",
	"right_wrist",
	"left_pinky",
	"right_pinky",
	"left_index",
	"right_index",
	"left_thumb",
	"right_thumb",
	"left_hip",
	"right_hip",
	"left_knee",
	"right_knee",
	"left_ankle",
	"right_ankle",
	"left_heel",
	"right_heel",
	"left_foot_index",
	"right_foot_index",
}

const (
	LeftShoulder JointID = "left_shoulder"
	LeftElbow    JointID = "left_elbow"
	LeftWrist    JointID = "left_wrist"
	LeftPinky    JointID = "left_pinky"
	LeftHip      JointID = "left_hip"
)

// LandmarkName returns the joint id for a MediaPipe landmark index.
func LandmarkName(index int) (JointID, bool) {
	if index < 0 || index >= len(landmarkNames) {
		return "", false
	}
	return landmarkNames[index], true
}

// IsKnown reports whether id is one of the MediaPipe landmark names.
func (id JointID) IsKnown() bool {
	for _, n := range landmarkNames {
		if n == id {
			return true
		}
	}
	return false
}

func (id JointID) String() string {
	return string(id)
}
